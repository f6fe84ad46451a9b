package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAuthRequired       = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("account already exists")
)

// ValidationError names the input check that failed. Nothing is written when
// it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NetworkError wraps a failure talking to a remote collaborator
// (places provider, document store, identity provider).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// Remote wraps err as a NetworkError unless it already carries a meaning the
// caller acts on (not found, auth, validation, context cancellation).
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var ne *NetworkError
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAuthRequired),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountExists),
		errors.Is(err, context.Canceled),
		errors.As(err, &ve),
		errors.As(err, &ne):
		return err
	}
	return &NetworkError{Op: op, Err: err}
}
