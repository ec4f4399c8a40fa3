// Package models defines persisted notifications and their visibility rules.
package models

import (
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"talentflow/internal/events"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

// Notification is one message for one recipient, or one broadcast row for
// every member holding an audience role. Read is reported for the viewer.
type Notification struct {
	ID              domain.NotificationID `json:"id"`
	IdempotencyKey  string                `json:"-"`
	Type            events.Type           `json:"type"`
	OrganizationID  domain.OrganizationID `json:"organizationId"`
	RecipientUserID domain.UserID         `json:"recipientUserId,omitempty"`
	AudienceRoles   []domain.Role         `json:"audienceRoles,omitempty"`
	CandidateID     domain.CandidateID    `json:"candidateId,omitempty"`
	InterviewID     domain.InterviewID    `json:"interviewId,omitempty"`
	Title           string                `json:"title"`
	Message         string                `json:"message"`
	Read            bool                  `json:"read"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// IdempotencyKey is hex(BLAKE2b-256(eventId || recipient || type)). The
// recipient of a broadcast row is its sorted audience.
func IdempotencyKey(eventID domain.EventID, recipient string, typ events.Type) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(eventID.String()))
	h.Write([]byte{0})
	h.Write([]byte(recipient))
	h.Write([]byte{0})
	h.Write([]byte(typ))
	return hex.EncodeToString(h.Sum(nil))
}

// AudienceKey renders roles as the recipient component of a broadcast key.
func AudienceKey(roles []domain.Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	slices.Sort(names)
	return "roles:" + strings.Join(names, ",")
}

// Draft is what the builder decides to send before ids are minted.
type Draft struct {
	Recipient     domain.UserID
	AudienceRoles []domain.Role
	Title         string
	Message       string
	Metadata      map[string]string
}

// FromDraft mints a notification for evt. The id is random; the idempotency
// key is deterministic.
func FromDraft(evt events.Event, d Draft, createdAt time.Time) (*Notification, error) {
	n := &Notification{
		ID:              domain.NewNotificationID(),
		Type:            evt.Type,
		OrganizationID:  evt.OrganizationID,
		RecipientUserID: d.Recipient,
		AudienceRoles:   d.AudienceRoles,
		CandidateID:     evt.Subjects.CandidateID,
		InterviewID:     evt.Subjects.InterviewID,
		Title:           d.Title,
		Message:         d.Message,
		Metadata:        d.Metadata,
		CreatedAt:       createdAt.UTC(),
	}
	recipient := d.Recipient.String()
	if n.IsBroadcast() {
		recipient = AudienceKey(d.AudienceRoles)
	}
	n.IdempotencyKey = IdempotencyKey(evt.ID, recipient, evt.Type)
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Notification) IsBroadcast() bool {
	return n.RecipientUserID.IsZero()
}

func (n *Notification) Validate() error {
	switch {
	case n.OrganizationID.IsZero():
		return dErrors.New(dErrors.CodeInvariantViolation, "notification requires an organization")
	case n.IsBroadcast() && len(n.AudienceRoles) == 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "broadcast notification requires audience roles")
	case !n.IsBroadcast() && len(n.AudienceRoles) > 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "direct notification cannot carry audience roles")
	case n.Title == "" || n.IdempotencyKey == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "notification requires title and idempotency key")
	}
	return nil
}

// VisibleTo reports whether a member of org with the given role sees n.
func (n *Notification) VisibleTo(org domain.OrganizationID, user domain.UserID, role domain.Role) bool {
	if n.OrganizationID != org {
		return false
	}
	if n.IsBroadcast() {
		return role.In(n.AudienceRoles)
	}
	return n.RecipientUserID == user
}

// ForViewer returns a copy with Read set for one viewer.
func (n *Notification) ForViewer(read bool) *Notification {
	cp := *n
	cp.Read = read
	cp.AudienceRoles = slices.Clone(n.AudienceRoles)
	return &cp
}

// Viewer identifies who is asking for notifications.
type Viewer struct {
	OrganizationID domain.OrganizationID
	UserID         domain.UserID
	Role           domain.Role
}

// ListFilter bounds a listing. Limit <= 0 means DefaultListLimit. Listings
// are newest first unless OldestFirst is set; After then resumes strictly
// past a previous page's last row.
type ListFilter struct {
	UnreadOnly  bool
	Limit       int
	OldestFirst bool
	After       *Cursor
}

// Cursor is a position in (CreatedAt, ID) order.
type Cursor struct {
	CreatedAt time.Time
	ID        domain.NotificationID
}

// CursorOf returns the position of n.
func CursorOf(n *Notification) *Cursor {
	return &Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
}

// Before reports whether n sorts strictly before c in (CreatedAt, ID) order.
// IDs compare by their canonical string form, which matches uuid ordering in
// Postgres.
func (c Cursor) Before(n *Notification) bool {
	if !c.CreatedAt.Equal(n.CreatedAt) {
		return c.CreatedAt.Before(n.CreatedAt)
	}
	return c.ID.String() < n.ID.String()
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (f ListFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
