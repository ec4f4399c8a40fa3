package handler

import (
	"strings"

	"talentflow/internal/candidate/models"
	dErrors "talentflow/pkg/domain-errors"
)

const maxCommentLength = 2000

// TransitionRequest is the body of PATCH /candidates/{id}/state.
type TransitionRequest struct {
	NewState        string `json:"newState"`
	Comment         string `json:"comment,omitempty"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`

	parsedState models.State
}

// Validate implements httputil.Validatable.
func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Comment) > maxCommentLength {
		return dErrors.New(dErrors.CodeValidation, "comment is too long")
	}
	r.Comment = strings.TrimSpace(r.Comment)

	if strings.TrimSpace(r.NewState) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "newState is required")
	}
	st, err := models.ParseState(r.NewState)
	if err != nil {
		return err
	}
	r.parsedState = st

	if r.ExpectedVersion != nil && *r.ExpectedVersion < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "expectedVersion must be positive")
	}
	return nil
}

// ParsedState returns the state resolved by Validate.
func (r *TransitionRequest) ParsedState() models.State {
	return r.parsedState
}
