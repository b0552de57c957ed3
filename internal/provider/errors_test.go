package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/internal/resilience"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   model.ErrorKind
	}{
		{http.StatusTooManyRequests, model.ErrRateLimited},
		{529, model.ErrRateLimited},
		{http.StatusUnauthorized, model.ErrAuthentication},
		{http.StatusForbidden, model.ErrAuthentication},
		{http.StatusNotFound, model.ErrModelUnavailable},
		{http.StatusRequestTimeout, model.ErrTimeout},
		{http.StatusInternalServerError, model.ErrTimeout},
		{http.StatusServiceUnavailable, model.ErrTimeout},
		{http.StatusBadRequest, model.ErrProvider},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindForStatus(tt.status), "status %d", tt.status)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrorKind
	}{
		{"nil", nil, ""},
		{"explicit kind", &Error{Kind: model.ErrAuthentication, Err: errors.New("bad key")}, model.ErrAuthentication},
		{"wrapped explicit kind", eris.Wrap(&Error{Kind: model.ErrRateLimited, Err: errors.New("429")}, "call"), model.ErrRateLimited},
		{"configuration", &ConfigurationError{Reason: "unknown provider", Value: "x"}, model.ErrConfiguration},
		{"canceled", context.Canceled, model.ErrCanceled},
		{"deadline", eris.Wrap(context.DeadlineExceeded, "call"), model.ErrTimeout},
		{"connection reset", errors.New("read: connection reset by peer"), model.ErrTimeout},
		{"other", errors.New("invalid json"), model.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassify_StatusWins(t *testing.T) {
	pe := classify("openai", "gpt-4o-mini", http.StatusTooManyRequests, errors.New("slow down"))
	assert.Equal(t, model.ErrRateLimited, pe.Kind)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, 429, pe.StatusCode)
	assert.Contains(t, pe.Error(), "status 429")
}

func TestClassify_MarksTransientStatuses(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{529, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		pe := classify("openai", "m", tt.status, errors.New("upstream"))
		var te *resilience.TransientError
		assert.Equal(t, tt.transient, errors.As(pe, &te), "status %d", tt.status)
		assert.Equal(t, tt.transient, resilience.IsTransient(pe), "status %d", tt.status)
		if tt.transient {
			assert.Equal(t, tt.status, te.StatusCode)
		}
	}
}

func TestClassify_KeepsExistingError(t *testing.T) {
	orig := &Error{Kind: model.ErrModelUnavailable, Provider: "anthropic"}
	assert.Same(t, orig, classify("openai", "m", 500, eris.Wrap(orig, "wrapped")))
}

func TestConfigurationError(t *testing.T) {
	err := eris.Wrap(&ConfigurationError{Reason: "unknown provider", Value: "foo"}, "resolve")
	assert.True(t, IsConfigurationError(err))
	assert.False(t, IsConfigurationError(errors.New("x")))
	assert.Equal(t, `provider configuration: unknown provider: "foo"`, (&ConfigurationError{Reason: "unknown provider", Value: "foo"}).Error())
	assert.Equal(t, "provider configuration: no provider configured", (&ConfigurationError{Reason: "no provider configured"}).Error())
}
