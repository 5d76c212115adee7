// Package mamaerr defines the small error taxonomy shared across the engine.
//
// Façade-visible conditions (validation failures, not-found, degraded-tier
// results) are represented as sentinel errors so callers can distinguish
// them with errors.Is without parsing messages. Everything else is wrapped
// with fmt.Errorf("...: %w", err) at each boundary.
package mamaerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a caller input error — never a thrown panic, always
	// surfaced as {success:false, message}.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup that found nothing.
	ErrNotFound = errors.New("not found")

	// ErrNotInitialized marks a storage accessor called before (or after a
	// failed) init. No code path returns it at present: storage.Open returns
	// its own error and no Store when init fails.
	ErrNotInitialized = errors.New("storage not initialized")

	// ErrDegraded marks a vector-layer call made while the ANN index is
	// unavailable. Never propagated to the façade as a failure — callers
	// translate it into an empty result.
	ErrDegraded = errors.New("vector index disabled")
)

// Validationf wraps a formatted message as a validation error.
func Validationf(format string, args ...any) error {
	return &wrapped{msg: fmt.Sprintf(format, args...), sentinel: ErrValidation}
}

type wrapped struct {
	msg      string
	sentinel error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.sentinel }
