package events

import (
	"time"

	"talentflow/pkg/domain"
)

// CandidateStateChanged is emitted by the transition engine. It carries the
// collaborator ids the notification rules need so no lookup is required.
type CandidateStateChanged struct {
	CandidateName     string        `json:"candidateName"`
	PreviousState     string        `json:"previousState"`
	NewState          string        `json:"newState"`
	ChangedBy         domain.UserID `json:"changedBy"`
	ChangedByName     string        `json:"changedByName"`
	Comment           string        `json:"comment,omitempty"`
	Version           int64         `json:"version"`
	AssignedManagerID domain.UserID `json:"assignedManagerId,omitempty"`
	PortalUserID      domain.UserID `json:"portalUserId,omitempty"`
}

type NewCandidateApplied struct {
	CandidateName string `json:"candidateName"`
	JobOfferTitle string `json:"jobOfferTitle,omitempty"`
}

// InterviewChanged is shared by the scheduled, updated and cancelled events.
type InterviewChanged struct {
	CandidateName  string          `json:"candidateName"`
	ScheduledAt    time.Time       `json:"scheduledAt"`
	Location       string          `json:"location,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	ParticipantIDs []domain.UserID `json:"participantIds"`
	PortalUserID   domain.UserID   `json:"portalUserId,omitempty"`
}

// DocumentChanged is shared by DocumentProcessed and SkillsExtracted.
type DocumentChanged struct {
	CandidateName     string        `json:"candidateName"`
	DocumentName      string        `json:"documentName"`
	UploadedBy        domain.UserID `json:"uploadedBy,omitempty"`
	AssignedManagerID domain.UserID `json:"assignedManagerId,omitempty"`
	Skills            []string      `json:"skills,omitempty"`
}

type JobOfferCreated struct {
	Title     string        `json:"title"`
	CreatedBy domain.UserID `json:"createdBy,omitempty"`
}
