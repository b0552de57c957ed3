// Package api exposes the answer engine to the browser extension over a
// local HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/internal/orchestrator"
	"github.com/autoresumefiller/autofill/internal/provider"
	"github.com/autoresumefiller/autofill/internal/session"
	"github.com/autoresumefiller/autofill/internal/store"
	"github.com/autoresumefiller/autofill/internal/usage"
)

// DefaultCORSOrigins admits the extension and local development pages.
var DefaultCORSOrigins = []string{"chrome-extension://*", "http://localhost:*", "http://127.0.0.1:*"}

const maxBodyBytes = 1 << 20

// Handler serves the API.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Store
	Tracker      *usage.Tracker
	Store        store.UsageStore // may be nil
	Gatherer     prometheus.Gatherer
	Version      string
	CORSOrigins  []string

	now func() time.Time
}

// NewHandler wires a Handler. st and gatherer may be nil.
func NewHandler(orch *orchestrator.Orchestrator, sessions *session.Store, st store.UsageStore, gatherer prometheus.Gatherer, version string) *Handler {
	return &Handler{
		Orchestrator: orch,
		Sessions:     sessions,
		Tracker:      orch.Tracker(),
		Store:        st,
		Gatherer:     gatherer,
		Version:      version,
		CORSOrigins:  DefaultCORSOrigins,
		now:          time.Now,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.handleStatus)

		r.Post("/sessions", h.handleStartSession)
		r.Delete("/sessions/{id}", h.handleEndSession)
		r.Post("/sessions/{id}/resolve", h.handleResolve)
		r.Post("/sessions/{id}/feedback", h.handleFeedback)

		r.Get("/usage", h.handleUsage)
		r.Get("/providers", h.handleProviders)
		r.Put("/providers/active", h.handleSwitchProvider)
		r.Post("/extract", h.handleExtract)
	})

	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   h.Version,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength > 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = h.Sessions.Start()
	} else if _, err := h.Sessions.StartWithID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if !h.Sessions.EndSession(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resolveRequest struct {
	Fields      []model.FieldDescriptor `json:"fields"`
	Context     model.PromptContext     `json:"context"`
	MaxParallel int                     `json:"max_parallel"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}
	if req.MaxParallel < 0 {
		writeError(w, http.StatusBadRequest, "max_parallel must not be negative")
		return
	}

	res, err := h.Orchestrator.Resolve(r.Context(), chi.URLParam(r, "id"), req.Fields, req.Context, req.MaxParallel)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FieldID  string         `json:"field_id"`
		Decision model.Decision `json:"decision"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FieldID == "" || !req.Decision.Valid() {
		writeError(w, http.StatusBadRequest, "field_id and a decision of approve, edit or reject are required")
		return
	}

	if err := h.Orchestrator.Feedback(chi.URLParam(r, "id"), req.FieldID, req.Decision); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// usageResponse combines the in-memory window with persisted totals.
type usageResponse struct {
	usage.Report
	Persisted []store.ProviderTotals `json:"persisted,omitempty"`
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC3339 or a duration such as 24h")
		return
	}

	var resp usageResponse
	if since.IsZero() {
		resp.Report = h.Tracker.Report()
	} else {
		resp.Report = h.Tracker.Since(since)
	}

	if h.Store != nil {
		totals, err := h.Store.Summarize(r.Context(), since, time.Time{})
		if err != nil {
			zap.L().Error("api: summarize usage", zap.Error(err))
		} else {
			resp.Persisted = totals
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) handleProviders(w http.ResponseWriter, r *http.Request) {
	names, active := h.Orchestrator.Providers()
	writeJSON(w, http.StatusOK, map[string]any{"providers": names, "active": active})
}

func (h *Handler) handleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	if err := h.Orchestrator.SwitchProvider(r.Context(), req.Name); err != nil {
		h.writeFailure(w, err)
		return
	}
	_, active := h.Orchestrator.Providers()
	writeJSON(w, http.StatusOK, map[string]string{"active": active})
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing text")
		return
	}

	posting, err := h.Orchestrator.ExtractJobPosting(r.Context(), req.Text)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posting)
}

// writeFailure maps engine errors onto status codes.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case provider.IsConfigurationError(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":      err.Error(),
			"error_kind": string(model.ErrConfiguration),
		})
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrEnded):
		writeError(w, http.StatusGone, "session ended")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "request canceled")
	default:
		var pe *provider.Error
		if errors.As(err, &pe) {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":      err.Error(),
				"error_kind": string(pe.Kind),
			})
			return
		}
		zap.L().Error("api: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
