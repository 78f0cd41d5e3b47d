package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the builder operations. Wrapped with context via
// fmt.Errorf("...: %w", ...) at the call site so callers can still
// errors.Is against the bare sentinel.
var (
	// ErrAlreadyDefined is returned when a second entry is defined with a
	// name that already exists in the model.
	ErrAlreadyDefined = errors.New("already defined")

	// ErrInvalidArgument is returned when a builder argument falls outside
	// the bounds the configuration grammar allows (outband delay,
	// suspend delay).
	ErrInvalidArgument = errors.New("invalid argument")
)

// wrapf wraps sentinel with a formatted context prefix, preserving
// errors.Is/errors.As against sentinel.
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
