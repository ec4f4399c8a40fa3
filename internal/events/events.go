// Package events defines the immutable domain events exchanged between the
// transition engine, collaborator services and the notification builder.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

// Type names a domain occurrence.
type Type string

const (
	TypeCandidateStateChanged Type = "CandidateStateChanged"
	TypeNewCandidateApplied   Type = "NewCandidateApplied"
	TypeInterviewScheduled    Type = "InterviewScheduled"
	TypeInterviewUpdated      Type = "InterviewUpdated"
	TypeInterviewCancelled    Type = "InterviewCancelled"
	TypeDocumentProcessed     Type = "DocumentProcessed"
	TypeSkillsExtracted       Type = "SkillsExtracted"
	TypeJobOfferCreated       Type = "JobOfferCreated"
)

var knownTypes = map[Type]struct{}{
	TypeCandidateStateChanged: {},
	TypeNewCandidateApplied:   {},
	TypeInterviewScheduled:    {},
	TypeInterviewUpdated:      {},
	TypeInterviewCancelled:    {},
	TypeDocumentProcessed:     {},
	TypeSkillsExtracted:       {},
	TypeJobOfferCreated:       {},
}

// Known reports whether t is one of the defined event types.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

func (t Type) String() string { return string(t) }

// Types lists every defined event type in declaration order.
func Types() []Type {
	return []Type{
		TypeCandidateStateChanged,
		TypeNewCandidateApplied,
		TypeInterviewScheduled,
		TypeInterviewUpdated,
		TypeInterviewCancelled,
		TypeDocumentProcessed,
		TypeSkillsExtracted,
		TypeJobOfferCreated,
	}
}

// ErrMalformedPayload marks a payload that cannot be decoded into its type.
// Such events are poison: retrying them cannot succeed.
var ErrMalformedPayload = errors.New("malformed event payload")

// SubjectIDs references the entities an event is about.
type SubjectIDs struct {
	CandidateID domain.CandidateID `json:"candidateId,omitempty"`
	InterviewID domain.InterviewID `json:"interviewId,omitempty"`
	DocumentID  domain.DocumentID  `json:"documentId,omitempty"`
	JobOfferID  domain.JobOfferID  `json:"jobOfferId,omitempty"`
}

// Event is an immutable record of something that happened in a tenant.
type Event struct {
	ID             domain.EventID        `json:"id"`
	Type           Type                  `json:"type"`
	OrganizationID domain.OrganizationID `json:"organizationId"`
	Subjects       SubjectIDs            `json:"subjectIds"`
	Payload        json.RawMessage       `json:"payload"`
	OccurredAt     time.Time             `json:"occurredAt"`
}

// New builds an event with a fresh id, marshalling payload.
func New(typ Type, org domain.OrganizationID, subjects SubjectIDs, payload any, occurredAt time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "marshal event payload")
	}
	evt := Event{
		ID:             domain.NewEventID(),
		Type:           typ,
		OrganizationID: org,
		Subjects:       subjects,
		Payload:        raw,
		OccurredAt:     occurredAt.UTC(),
	}
	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// PartitionKey keeps one candidate's events on one ordered lane. Events
// without a candidate are ordered per tenant.
func (e Event) PartitionKey() string {
	if !e.Subjects.CandidateID.IsZero() {
		return e.OrganizationID.String() + "/" + e.Subjects.CandidateID.String()
	}
	return e.OrganizationID.String()
}

// Validate checks the envelope and the subject ids each type requires.
func (e Event) Validate() error {
	if e.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "event id is required")
	}
	if !e.Type.Known() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown event type %q", e.Type))
	}
	if e.OrganizationID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "organizationId is required")
	}
	if e.OccurredAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "occurredAt is required")
	}
	trimmed := bytes.TrimSpace(e.Payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return dErrors.New(dErrors.CodeValidation, "payload must be a JSON object")
	}

	s := e.Subjects
	switch e.Type {
	case TypeCandidateStateChanged, TypeNewCandidateApplied:
		if s.CandidateID.IsZero() {
			return missingSubject(e.Type, "candidateId")
		}
	case TypeInterviewScheduled, TypeInterviewUpdated, TypeInterviewCancelled:
		if s.CandidateID.IsZero() {
			return missingSubject(e.Type, "candidateId")
		}
		if s.InterviewID == "" {
			return missingSubject(e.Type, "interviewId")
		}
	case TypeDocumentProcessed, TypeSkillsExtracted:
		if s.CandidateID.IsZero() {
			return missingSubject(e.Type, "candidateId")
		}
		if s.DocumentID == "" {
			return missingSubject(e.Type, "documentId")
		}
	case TypeJobOfferCreated:
		if s.JobOfferID == "" {
			return missingSubject(e.Type, "jobOfferId")
		}
	}
	return nil
}

func missingSubject(t Type, field string) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s requires subjectIds.%s", t, field))
}

// Decode unmarshals the payload into T. Any failure wraps ErrMalformedPayload.
func Decode[T any](e Event) (T, error) {
	var out T
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %s %s: %v", ErrMalformedPayload, e.Type, e.ID, err)
	}
	return out, nil
}
