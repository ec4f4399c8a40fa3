// Package strings provides helpers for string-typed identifiers.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and blank values, trimming whitespace from
// each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]UserID{"  u1 ", "u2", "u1", "", "  "})
//	// Returns: []UserID{"u1", "u2"}
func DedupeAndTrim[T ~string](values []T) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))

	for _, v := range values {
		trimmed := T(strings.TrimSpace(string(v)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// Without returns values minus every occurrence of drop.
func Without[T ~string](values []T, drop T) []T {
	result := make([]T, 0, len(values))
	for _, v := range values {
		if v != drop {
			result = append(result, v)
		}
	}
	return result
}
