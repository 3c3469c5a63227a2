// Package tzone validates IANA time-zone identifiers against the host zone database.
package tzone

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTimeZone = errors.New("invalid time zone")

// Result is the outcome of Validate. Err is nil iff Valid.
type Result struct {
	Valid bool
	Err   error
}

// Validate never panics; an empty identifier is reported as invalid.
func Validate(id string) Result {
	if _, err := Load(id); err != nil {
		return Result{Err: err}
	}
	return Result{Valid: true}
}

// Load resolves id. Errors match ErrInvalidTimeZone.
func Load(id string) (*time.Location, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: identifier required", ErrInvalidTimeZone)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTimeZone, id, err)
	}
	return loc, nil
}
