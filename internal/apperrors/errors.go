// internal/apperrors/errors.go
package apperrors

import "errors"

// Error taxonomy for the prediagnostic pipeline. Callers match with
// errors.Is; context (case id, stage) is attached where the error
// originates via fmt.Errorf("...: %w", ...).
var (
	// ErrDecode marks uploaded bytes that are not a recognized image format.
	ErrDecode = errors.New("image decode failed")

	// ErrValidation marks client input that decoded but is unusable:
	// image too small, unsupported color mode, comment too short.
	ErrValidation = errors.New("validation failed")

	// ErrModelNotLoaded is returned when inference is requested before the
	// model backend has been loaded.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInference wraps any fault raised during the forward pass.
	ErrInference = errors.New("inference failed")

	// ErrStorage wraps connectivity or write faults from the persistence
	// and blob layers. Never retried here.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is the expected outcome for lookups against absent
	// identifiers, including unreviewed cases.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks a lifecycle transition that is illegal given
	// the case's current state.
	ErrInvalidState = errors.New("invalid case state")
)
