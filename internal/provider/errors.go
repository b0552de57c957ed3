package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/internal/resilience"
)

// Error is a classified provider failure.
type Error struct {
	Kind       model.ErrorKind
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Provider, e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationError means the provider setup itself is unusable; no field
// in the request can be processed.
type ConfigurationError struct {
	Reason string
	Value  string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return "provider configuration: " + e.Reason
	}
	return fmt.Sprintf("provider configuration: %s: %q", e.Reason, e.Value)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) model.ErrorKind {
	switch status {
	case http.StatusTooManyRequests, 529:
		return model.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrAuthentication
	case http.StatusNotFound:
		return model.ErrModelUnavailable
	}
	if resilience.IsTransientHTTPStatus(status) {
		return model.ErrTimeout
	}
	return model.ErrProvider
}

// KindOf classifies any error returned by an adapter.
func KindOf(err error) model.ErrorKind {
	if err == nil {
		return ""
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if IsConfigurationError(err) {
		return model.ErrConfiguration
	}
	if errors.Is(err, context.Canceled) {
		return model.ErrCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || resilience.IsTransient(err) {
		return model.ErrTimeout
	}
	return model.ErrProvider
}

// classify wraps err as an *Error for provider/model using the HTTP status
// when the transport reported one.
func classify(provider, modelName string, status int, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	kind := model.ErrProvider
	switch {
	case status != 0:
		kind = KindForStatus(status)
		if resilience.IsTransientHTTPStatus(status) {
			err = resilience.NewTransientError(err, status)
		}
	case errors.Is(err, context.Canceled):
		kind = model.ErrCanceled
	default:
		kind = KindOf(err)
	}
	return &Error{Kind: kind, Provider: provider, Model: modelName, StatusCode: status, Err: err}
}
