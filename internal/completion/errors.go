package completion

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderNotConfigured matches any *ProviderNotConfiguredError.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrModelNotAvailable matches any *ModelNotAvailableError.
	ErrModelNotAvailable = errors.New("model not available")
	// ErrEmptyCompletion is returned when a provider answers without choices.
	ErrEmptyCompletion = errors.New("provider returned no choices")
)

// ProviderNotConfiguredError reports a provider outside the activated set.
type ProviderNotConfiguredError struct {
	Provider string
}

func (e *ProviderNotConfiguredError) Error() string {
	return fmt.Sprintf("Provider %s not configured", e.Provider)
}

func (e *ProviderNotConfiguredError) Is(target error) bool {
	return target == ErrProviderNotConfigured
}

// ModelNotAvailableError reports a model missing from a configured
// provider's catalog.
type ModelNotAvailableError struct {
	Provider string
	Model    string
}

func (e *ModelNotAvailableError) Error() string {
	return fmt.Sprintf("Model %s not available for provider %s", e.Model, e.Provider)
}

func (e *ModelNotAvailableError) Is(target error) bool {
	return target == ErrModelNotAvailable
}

// UpstreamError wraps any failure of the completion client. Its message is
// the underlying error text, unparsed.
type UpstreamError struct {
	Target string
	Err    error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
