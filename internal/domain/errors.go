package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMissingCredential   = errors.New("no credential for provider")
	ErrUnknownTemplate     = errors.New("unknown template")
	ErrUnknownModel        = errors.New("unknown model")
)

// ProviderError is a failure reported by an upstream model provider.
// StatusCode is the provider's HTTP status; Message is the provider's error
// text, kept server-side only and never returned to the caller verbatim.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status=%d: %s", e.Provider, e.StatusCode, e.Message)
}
