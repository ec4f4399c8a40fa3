package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "talentflow/pkg/domain-errors"
)

// TestParseRef_TrustBoundary covers the rules applied to ids arriving in
// URLs, tokens and collaborator payloads.
func TestParseRef_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE candidates;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Dot only", "..", true},
		{"Null byte injection", "42\x00", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "42\u200B", true},
		{"Whitespace only", "   ", true},
		{"Empty string", "", true},

		{"Numeric id", "42", false},
		{"UUID", uuid.NewString(), false},
		{"Prefixed id", "org_acme-01", false},
		{"Colon namespaced", "cand:2024.17", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCandidateID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAllRefTypes_ConsistentBehavior(t *testing.T) {
	parsers := map[string]func(string) error{
		"organization": func(s string) error { _, err := ParseOrganizationID(s); return err },
		"user":         func(s string) error { _, err := ParseUserID(s); return err },
		"candidate":    func(s string) error { _, err := ParseCandidateID(s); return err },
		"interview":    func(s string) error { _, err := ParseInterviewID(s); return err },
		"document":     func(s string) error { _, err := ParseDocumentID(s); return err },
		"job offer":    func(s string) error { _, err := ParseJobOfferID(s); return err },
	}
	for name, parse := range parsers {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, parse("7"))
			assert.Error(t, parse(""))
			assert.Error(t, parse("a/b"))
		})
	}
}

func TestParseUUIDTypes(t *testing.T) {
	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseNotificationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects braced form", func(t *testing.T) {
		_, err := ParseEventID("{" + uuid.NewString() + "}")
		require.Error(t, err)
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		u := uuid.New()
		got, err := ParseNotificationID(u.String())
		require.NoError(t, err)
		assert.Equal(t, NotificationID(u), got)
	})
}

func TestNotificationID_JSON(t *testing.T) {
	id := NewNotificationID()
	body, err := json.Marshal(struct {
		ID NotificationID `json:"id"`
	}{ID: id})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"`+id.String()+`"}`, string(body))

	var decoded struct {
		ID NotificationID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, id, decoded.ID)
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" rh ")
	require.True(t, ok)
	assert.Equal(t, RoleRH, r)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)

	assert.True(t, RoleAdmin.In([]Role{RoleRH, RoleAdmin}))
	assert.False(t, RoleManager.In([]Role{RoleRH, RoleAdmin}))
}
