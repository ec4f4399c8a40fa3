package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"talentflow/internal/events"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

// EventRequest is the body of POST /internal/events. ID is optional; a
// producer that sets it gets idempotent submission.
type EventRequest struct {
	ID             string            `json:"id,omitempty"`
	Type           string            `json:"type"`
	OrganizationID string            `json:"organizationId"`
	Subjects       events.SubjectIDs `json:"subjectIds"`
	Payload        json.RawMessage   `json:"payload"`
	OccurredAt     *time.Time        `json:"occurredAt,omitempty"`
}

// collaborator event types; state changes only come from the transition engine
var ingestible = map[events.Type]struct{}{
	events.TypeNewCandidateApplied: {},
	events.TypeInterviewScheduled:  {},
	events.TypeInterviewUpdated:    {},
	events.TypeInterviewCancelled:  {},
	events.TypeDocumentProcessed:   {},
	events.TypeSkillsExtracted:     {},
	events.TypeJobOfferCreated:     {},
}

// Validate implements httputil.Validatable for the parts that need no clock.
func (r *EventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Type == "" {
		return dErrors.New(dErrors.CodeBadRequest, "type is required")
	}
	if _, ok := ingestible[events.Type(r.Type)]; !ok {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("event type %q cannot be submitted", r.Type))
	}
	if _, err := domain.ParseOrganizationID(r.OrganizationID); err != nil {
		return err
	}
	if r.ID != "" {
		if _, err := domain.ParseEventID(r.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a UUID")
		}
	}
	return nil
}

// toEvent builds the envelope and checks the payload decodes as its type.
func (r *EventRequest) toEvent(now time.Time) (events.Event, error) {
	id := domain.NewEventID()
	if r.ID != "" {
		parsed, err := domain.ParseEventID(r.ID)
		if err != nil {
			return events.Event{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a UUID")
		}
		id = parsed
	}
	occurredAt := now
	if r.OccurredAt != nil {
		occurredAt = *r.OccurredAt
	}
	evt := events.Event{
		ID:             id,
		Type:           events.Type(r.Type),
		OrganizationID: domain.OrganizationID(r.OrganizationID),
		Subjects:       r.Subjects,
		Payload:        r.Payload,
		OccurredAt:     occurredAt.UTC(),
	}
	if err := evt.Validate(); err != nil {
		return events.Event{}, err
	}
	if err := decodePayload(evt); err != nil {
		return events.Event{}, dErrors.Wrap(err, dErrors.CodeValidation, "payload does not match event type")
	}
	return evt, nil
}

func decodePayload(evt events.Event) error {
	var err error
	switch evt.Type {
	case events.TypeNewCandidateApplied:
		_, err = events.Decode[events.NewCandidateApplied](evt)
	case events.TypeInterviewScheduled, events.TypeInterviewUpdated, events.TypeInterviewCancelled:
		_, err = events.Decode[events.InterviewChanged](evt)
	case events.TypeDocumentProcessed, events.TypeSkillsExtracted:
		_, err = events.Decode[events.DocumentChanged](evt)
	case events.TypeJobOfferCreated:
		_, err = events.Decode[events.JobOfferCreated](evt)
	}
	return err
}

// AcceptedResponse is returned with 202.
type AcceptedResponse struct {
	EventID   string `json:"eventId"`
	Duplicate bool   `json:"duplicate"`
}
