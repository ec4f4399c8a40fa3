// Package revocation tracks revoked access tokens by jti so a token revoked at
// the authentication service stops opening realtime sessions immediately.
package revocation

import (
	"errors"
	"fmt"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

var errInvalidTTL = errors.New("invalid ttl")

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", errInvalidTTL)
	}
	return nil
}
