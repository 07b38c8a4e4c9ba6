package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a local or remote entity does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrProviderNotFound is returned when the calendar provider no longer has the event.
	ErrProviderNotFound = fmt.Errorf("calendar event %w", ErrNotFound)

	ErrUnauthenticated   = errors.New("no usable calendar token")
	ErrInsufficientScope = errors.New("calendar token lacks required scope")
	ErrForbidden         = errors.New("access denied")

	// ErrProviderTransient marks network/5xx/rate-limit failures. Retryable.
	ErrProviderTransient = errors.New("calendar provider unavailable")
	// ErrProviderRejected marks permanent provider failures. Not retried.
	ErrProviderRejected = errors.New("calendar provider rejected request")
	ErrUnknownProvider  = errors.New("unknown calendar provider")

	ErrVersionConflict      = errors.New("interview was modified concurrently")
	ErrInvalidWindow        = errors.New("invalid interview time window")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidTransition    = errors.New("invalid interview status transition")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrExternalRefImmutable = errors.New("external event reference cannot change")
)
