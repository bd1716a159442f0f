package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSubject = errors.New("unknown availability subject")
	ErrLineNotFound   = errors.New("line not found in cart")
	ErrNotInitialized = errors.New("session not initialized")
	ErrEmptyCart      = errors.New("cart is empty, nothing to checkout")
)

// FetchFailure is a network or server failure at a component boundary.
// Callers treat it as a non-fatal warning.
type FetchFailure struct {
	Op  string
	Err error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *FetchFailure) Unwrap() error {
	return e.Err
}

// ValidationFailure is an input rejected before any network call
type ValidationFailure struct {
	Field  string
	Reason string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsFetchFailure(err error) bool {
	var f *FetchFailure
	return errors.As(err, &f)
}

func IsValidationFailure(err error) bool {
	var v *ValidationFailure
	return errors.As(err, &v)
}
