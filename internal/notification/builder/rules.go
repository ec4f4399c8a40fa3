package builder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"talentflow/internal/events"
	"talentflow/internal/notification/models"
	"talentflow/pkg/domain"
	strutil "talentflow/pkg/platform/strings"
)

// hrAudience receives tenant-wide hiring notifications.
var hrAudience = []domain.Role{domain.RoleRH, domain.RoleAdmin}

// plan decides who hears about evt and what they are told. Recipients are
// de-duplicated; the actor of a state change is never notified about it.
func (b *Builder) plan(ctx context.Context, evt events.Event) ([]models.Draft, error) {
	switch evt.Type {
	case events.TypeCandidateStateChanged:
		p, err := events.Decode[events.CandidateStateChanged](evt)
		if err != nil {
			return nil, err
		}
		return planStateChanged(p), nil

	case events.TypeNewCandidateApplied:
		p, err := events.Decode[events.NewCandidateApplied](evt)
		if err != nil {
			return nil, err
		}
		members, err := b.directory.MembersWithRoles(ctx, evt.OrganizationID, hrAudience)
		if err != nil {
			return nil, fmt.Errorf("look up hiring team: %w", err)
		}
		msg := fmt.Sprintf("%s applied", p.CandidateName)
		if p.JobOfferTitle != "" {
			msg += " for " + p.JobOfferTitle
		}
		return direct(members, "New application", msg, nil), nil

	case events.TypeInterviewScheduled, events.TypeInterviewUpdated, events.TypeInterviewCancelled:
		p, err := events.Decode[events.InterviewChanged](evt)
		if err != nil {
			return nil, err
		}
		title, msg := interviewText(evt.Type, p)
		recipients := append(append([]domain.UserID{}, p.ParticipantIDs...), p.PortalUserID)
		meta := map[string]string{"scheduledAt": p.ScheduledAt.UTC().Format(time.RFC3339)}
		return direct(recipients, title, msg, meta), nil

	case events.TypeDocumentProcessed, events.TypeSkillsExtracted:
		p, err := events.Decode[events.DocumentChanged](evt)
		if err != nil {
			return nil, err
		}
		title := "Document processed"
		msg := fmt.Sprintf("%s for %s is ready", p.DocumentName, p.CandidateName)
		var meta map[string]string
		if evt.Type == events.TypeSkillsExtracted {
			title = "Skills extracted"
			msg = fmt.Sprintf("Skills extracted from %s for %s", p.DocumentName, p.CandidateName)
			if len(p.Skills) > 0 {
				meta = map[string]string{"skills": strings.Join(p.Skills, ",")}
			}
		}
		return direct([]domain.UserID{p.UploadedBy, p.AssignedManagerID}, title, msg, meta), nil

	case events.TypeJobOfferCreated:
		p, err := events.Decode[events.JobOfferCreated](evt)
		if err != nil {
			return nil, err
		}
		return []models.Draft{{
			AudienceRoles: hrAudience,
			Title:         "New job offer",
			Message:       fmt.Sprintf("Job offer %q was published", p.Title),
		}}, nil
	}
	return nil, nil
}

func planStateChanged(p events.CandidateStateChanged) []models.Draft {
	meta := map[string]string{
		"previousState": p.PreviousState,
		"newState":      p.NewState,
	}
	var drafts []models.Draft
	if p.PortalUserID != "" {
		drafts = append(drafts, models.Draft{
			Recipient: p.PortalUserID,
			Title:     "Application status updated",
			Message:   fmt.Sprintf("Your application is now %s", humanState(p.NewState)),
			Metadata:  meta,
		})
	}
	// The actor is notified like every other recipient.
	staff := strutil.Without(strutil.DedupeAndTrim([]domain.UserID{p.AssignedManagerID}), p.PortalUserID)
	by := p.ChangedByName
	if by == "" {
		by = p.ChangedBy.String()
	}
	drafts = append(drafts, direct(staff, "Candidate status changed",
		fmt.Sprintf("%s moved %s from %s to %s", by, p.CandidateName, humanState(p.PreviousState), humanState(p.NewState)),
		meta)...)
	return drafts
}

func direct(recipients []domain.UserID, title, message string, meta map[string]string) []models.Draft {
	ids := strutil.DedupeAndTrim(recipients)
	drafts := make([]models.Draft, 0, len(ids))
	for _, id := range ids {
		drafts = append(drafts, models.Draft{Recipient: id, Title: title, Message: message, Metadata: meta})
	}
	return drafts
}

func interviewText(typ events.Type, p events.InterviewChanged) (string, string) {
	when := p.ScheduledAt.UTC().Format("Jan 2 15:04 MST")
	switch typ {
	case events.TypeInterviewScheduled:
		return "Interview scheduled", fmt.Sprintf("Interview with %s on %s", p.CandidateName, when)
	case events.TypeInterviewUpdated:
		return "Interview updated", fmt.Sprintf("Interview with %s moved to %s", p.CandidateName, when)
	default:
		msg := fmt.Sprintf("Interview with %s on %s was cancelled", p.CandidateName, when)
		if p.Reason != "" {
			msg += ": " + p.Reason
		}
		return "Interview cancelled", msg
	}
}

func humanState(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}
