//go:build !linux

package actions

import "context"

// NewUnitController always fails off linux.
func NewUnitController(context.Context) (UnitController, error) { return nil, ErrUnsupported }
