// Package enums holds the string-backed value sets persisted in the database
// and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

func parseOneOf[T ~string](kind string, set []T, raw string) (T, error) {
	if v := T(raw); oneOf(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
