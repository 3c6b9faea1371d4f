// Package apperror defines the error taxonomy shared by the transcription
// pipeline and its HTTP surface.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCanceled is returned when the caller abandons a request while the
// pipeline is still waiting on the speech service.
var ErrCanceled = errors.New("transcription canceled by caller")

// ConfigurationError reports required settings that are absent. It is raised
// before any network call and is never retried.
type ConfigurationError struct {
	Component string
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Component, strings.Join(e.Missing, ", "))
}

// NewConfigurationError returns nil when nothing is missing.
func NewConfigurationError(component string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return &ConfigurationError{Component: component, Missing: missing}
}

// UpstreamError is a non-success answer from the object store or the speech
// service. StatusCode is 0 when the call failed below HTTP.
type UpstreamError struct {
	Service    string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Service, e.Op)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError rejects caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// HTTPStatus maps an error from the pipeline onto the status code the HTTP
// layer should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var cfgErr *ConfigurationError
	var upErr *UpstreamError
	var valErr *ValidationError
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &upErr):
		// The speech service's own 4xx/5xx is passed through so callers can
		// tell quota and auth problems apart from our own failures.
		if upErr.Service == ServiceSpeech && upErr.StatusCode >= 400 && upErr.StatusCode < 600 {
			return upErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, ErrCanceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Service names used in UpstreamError.
const (
	ServiceObjectStore = "object-store"
	ServiceSpeech      = "speech-service"
)
