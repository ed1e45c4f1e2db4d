package models

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a provider answers without any choice or content block.
var ErrEmptyResponse = errors.New("model returned no choices")

// ProviderError wraps a failure reported by a model backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
