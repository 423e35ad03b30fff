package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrConfig        = fmt.Errorf("server misconfigured")
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrUnauthenticated   = fmt.Errorf("not authenticated")
	ErrInsufficientScope = fmt.Errorf("insufficient scope")
	ErrStateMismatch     = fmt.Errorf("oauth state mismatch")
	ErrNoRefreshToken    = fmt.Errorf("no refresh token")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrAborted            = fmt.Errorf("operation aborted")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Rendering errors
	ErrRender = fmt.Errorf("render failed")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ProviderError is a non-2xx answer from the identity provider or its Web API.
type ProviderError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *ProviderError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("provider returned %d", e.Status)
	}
	return fmt.Sprintf("%s: provider returned %d", e.Op, e.Status)
}

// Is lets a 403 match [ErrInsufficientScope] and a 401 match [ErrUnauthenticated].
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrInsufficientScope:
		return e.Status == http.StatusForbidden
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case ErrAPIRequest:
		return true
	}
	return false
}

// RenderError records a single image that could not be drawn.
type RenderError struct {
	URL string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrRender, e.URL, e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}

// ProviderStatus returns the HTTP status carried by err, or 0.
func ProviderStatus(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}
