package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
//   - ErrNotFound: row does not exist (or belongs to another tenant)
//   - ErrConflict: compare-and-swap lost, version moved on
//   - ErrDuplicate: unique key already present (idempotency key, event id)
//   - ErrUnavailable: the backing store could not be reached
//
// Validation failures use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDuplicate   = errors.New("duplicate")
	ErrUnavailable = errors.New("unavailable")
)
