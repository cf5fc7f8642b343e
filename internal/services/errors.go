package services

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable marks a retryable Cache Store I/O failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDuplicateFingerprint is returned when a still-valid entry already
	// exists for the fingerprint being stored.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

	ErrMalformedAgentOutput = errors.New("malformed agent output")
	ErrAgentLoopExceeded    = errors.New("agent loop exceeded maximum iterations")
	ErrAgentTimeout         = errors.New("agent run timed out")
	ErrModelProvider        = errors.New("model provider failed")

	// ErrSearchTransport marks a search call that never got an HTTP response.
	ErrSearchTransport = errors.New("search transport failure")
)

// SearchProviderError is a search call that reached the provider but failed:
// a non-2xx status or a body that could not be decoded.
type SearchProviderError struct {
	StatusCode int
	Body       string
}

func (e *SearchProviderError) Error() string {
	return fmt.Sprintf("search provider returned status %d: %s", e.StatusCode, e.Body)
}

func storageUnavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
}
