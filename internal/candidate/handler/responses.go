package handler

import (
	"time"

	"talentflow/internal/candidate/models"
)

type CandidateResponse struct {
	ID                 string    `json:"id"`
	OrganizationID     string    `json:"organizationId"`
	FullName           string    `json:"fullName,omitempty"`
	State              string    `json:"state"`
	Version            int64     `json:"version"`
	AssignedManagerID  string    `json:"assignedManagerId,omitempty"`
	StateChangedAt     time.Time `json:"stateChangedAt"`
	AllowedTransitions []string  `json:"allowedTransitions"`
}

type TransitionResponse struct {
	CandidateID   string    `json:"candidateId"`
	PreviousState string    `json:"previousState"`
	NewState      string    `json:"newState"`
	ChangedBy     string    `json:"changedBy"`
	ChangedByName string    `json:"changedByName,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	ChangedAt     time.Time `json:"changedAt"`
}

func toCandidateResponse(c *models.Candidate, allowed []models.State) *CandidateResponse {
	next := make([]string, 0, len(allowed))
	for _, s := range allowed {
		next = append(next, s.String())
	}
	return &CandidateResponse{
		ID:                 c.ID.String(),
		OrganizationID:     c.OrganizationID.String(),
		FullName:           c.FullName,
		State:              c.State.String(),
		Version:            c.Version,
		AssignedManagerID:  c.AssignedManagerID.String(),
		StateChangedAt:     c.StateChangedAt,
		AllowedTransitions: next,
	}
}

func toHistoryResponse(history []*models.StateTransition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(history))
	for _, t := range history {
		out = append(out, TransitionResponse{
			CandidateID:   t.CandidateID.String(),
			PreviousState: t.PreviousState.String(),
			NewState:      t.NewState.String(),
			ChangedBy:     t.ChangedBy.String(),
			ChangedByName: t.ChangedByName,
			Comment:       t.Comment,
			ChangedAt:     t.ChangedAt,
		})
	}
	return out
}
