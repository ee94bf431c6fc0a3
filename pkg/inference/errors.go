package inference

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey        = errors.New("inference: API key required")
	ErrNoImage         = errors.New("inference: image required")
	ErrEmptyResponse   = errors.New("inference: empty response")
	ErrUnknownProvider = errors.New("inference: unknown provider")
)

// APIError is a non-200 answer from a vision backend.
type APIError struct {
	Provider   string
	StatusCode int

	// Code is the backend's error code or status name. May be empty.
	Code    string
	Message string
}

func (e *APIError) Error() string {
	s := fmt.Sprintf("inference [%s]: HTTP %d", e.Provider, e.StatusCode)
	if e.Code != "" {
		s += " " + e.Code
	}
	return s + ": " + e.Message
}

// Temporary reports whether the same request may succeed later (429 or 5xx).
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Auth reports whether the backend rejected the credentials.
func (e *APIError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. A nil err stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
