// Package domain holds the typed identifiers shared across modules.
//
// Entities owned by collaborators (organizations, users, candidates,
// interviews, documents, job offers) are referenced by opaque string ids.
// Records minted here (events, notifications, realtime connections) use UUIDs.
// Distinct named types keep a CandidateID from being passed where a UserID is
// expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "talentflow/pkg/domain-errors"
)

// maxRefLength bounds opaque reference ids accepted at trust boundaries.
const maxRefLength = 64

type (
	OrganizationID string
	UserID         string
	CandidateID    string
	InterviewID    string
	DocumentID     string
	JobOfferID     string
)

func (id OrganizationID) String() string { return string(id) }
func (id UserID) String() string         { return string(id) }
func (id CandidateID) String() string    { return string(id) }
func (id InterviewID) String() string    { return string(id) }
func (id DocumentID) String() string     { return string(id) }
func (id JobOfferID) String() string     { return string(id) }

func (id OrganizationID) IsZero() bool { return id == "" }
func (id UserID) IsZero() bool         { return id == "" }
func (id CandidateID) IsZero() bool    { return id == "" }

func ParseOrganizationID(s string) (OrganizationID, error) {
	v, err := parseRef("organization id", s)
	return OrganizationID(v), err
}

func ParseUserID(s string) (UserID, error) {
	v, err := parseRef("user id", s)
	return UserID(v), err
}

func ParseCandidateID(s string) (CandidateID, error) {
	v, err := parseRef("candidate id", s)
	return CandidateID(v), err
}

func ParseInterviewID(s string) (InterviewID, error) {
	v, err := parseRef("interview id", s)
	return InterviewID(v), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	v, err := parseRef("document id", s)
	return DocumentID(v), err
}

func ParseJobOfferID(s string) (JobOfferID, error) {
	v, err := parseRef("job offer id", s)
	return JobOfferID(v), err
}

// parseRef accepts [A-Za-z0-9._:-], 1..64 chars, and rejects dot-only segments.
func parseRef(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxRefLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == ':', c == '.':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
		}
	}
	if strings.Trim(s, ".") == "" || strings.Contains(s, "..") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return s, nil
}

type (
	EventID        uuid.UUID
	NotificationID uuid.UUID
	ConnectionID   uuid.UUID
)

func NewEventID() EventID               { return EventID(uuid.New()) }
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }
func NewConnectionID() ConnectionID     { return ConnectionID(uuid.New()) }

func (id EventID) String() string        { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }
func (id ConnectionID) String() string   { return uuid.UUID(id).String() }

func (id EventID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id EventID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ConnectionID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *NotificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseNotificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID("event id", s)
	return EventID(u), err
}

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID("notification id", s)
	return NotificationID(u), err
}

func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := parseUUID("connection id", s)
	return ConnectionID(u), err
}

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) != 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}
