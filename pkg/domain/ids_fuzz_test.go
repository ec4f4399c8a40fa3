package domain

import (
	"testing"
)

// FuzzParseCandidateID checks parsing never panics and accepted ids round-trip.
func FuzzParseCandidateID(f *testing.F) {
	f.Add("")
	f.Add("42")
	f.Add("../etc/passwd")
	f.Add("'; DROP TABLE candidates;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("cand-550e8400-e29b-41d4-a716-446655440000")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseCandidateID(input)
		if err != nil {
			return
		}
		if len(id) == 0 || len(id) > maxRefLength {
			t.Fatalf("accepted id with length %d", len(id))
		}
		again, err := ParseCandidateID(id.String())
		if err != nil {
			t.Fatalf("accepted id failed round-trip: %v", err)
		}
		if again != id {
			t.Fatal("round-trip changed id value")
		}
	})
}

// FuzzParseNotificationID checks UUID-backed ids.
func FuzzParseNotificationID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseNotificationID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Fatal("nil UUID accepted")
		}
		again, err := ParseNotificationID(id.String())
		if err != nil || again != id {
			t.Fatalf("round-trip failed: %v", err)
		}
	})
}
