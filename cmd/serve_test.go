package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEngine_OfflineWithoutProfile(t *testing.T) {
	setTestConfig(t)

	env, err := initEngine(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Store)
	assert.Nil(t, env.Profile)
	assert.Equal(t, "offline", env.Registry.ActiveName())
	assert.NotNil(t, env.Orchestrator)
}

func TestInitEngine_InvalidConfig(t *testing.T) {
	c := setTestConfig(t)
	c.Orchestrator.MaxParallel = 0

	_, err := initEngine(context.Background(), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel")
}

func TestNewServer_Routes(t *testing.T) {
	c := setTestConfig(t)
	c.Server.Port = 9999

	env, err := initEngine(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	srv := newServer(env)
	assert.Equal(t, "127.0.0.1:9999", srv.Addr)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, version, body["version"])

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	sid := created["session_id"]

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sid+"/resolve",
		strings.NewReader(`{"fields":[{"id":"why","label":"Why do you want to work here?"}],"context":{"company":"Acme"}}`))
	srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"source":"generation"`)

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
