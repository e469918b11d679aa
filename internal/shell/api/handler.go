// Package api provides HTTP handlers for the dynroute API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/api/middleware"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/artpar/dynroute/internal/shell/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// Config wires the handler's dependencies.
type Config struct {
	Service *scheduler.Service
	Store   store.Store

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// Token guards /api/v1 when set.
	Token string

	Logger *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	service *scheduler.Service
	store   store.Store
	metrics http.Handler
	auth    *middleware.AuthMiddleware
	logger  *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")
	return &Handler{
		service: cfg.Service,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		auth:    middleware.NewAuthMiddleware(middleware.AuthConfig{Token: cfg.Token, Logger: logger}),
		logger:  logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.jsonContentType)
		r.Use(h.auth.Handler)

		r.Post("/triggers", h.handleTrigger)

		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Post("/rebuild", h.handleRebuild)
			r.Post("/check", h.handleCheck)
			r.Get("/slugs", h.handleListSlugs)
			r.Get("/slugs/{locale}", h.handleResolveSlug)
			r.Put("/slugs/{locale}/custom", h.handlePinSlug)
			r.Delete("/slugs/{locale}/custom", h.handleUnpinSlug)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	checks := map[string]string{"database": "ok"}

	if _, err := h.store.ListSites(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Trigger Handlers
// =============================================================================

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var t routing.Trigger
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	res, err := h.service.HandleTrigger(r.Context(), t)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if res.Suppressed {
		h.writeJSON(w, http.StatusAccepted, res)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// Node Handlers
// =============================================================================

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	descendants := false
	if v := r.URL.Query().Get("descendants"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "descendants must be a boolean", "validation_error")
			return
		}
		descendants = b
	}

	res, err := h.service.RebuildNode(r.Context(), id, descendants)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conflicts, err := h.service.Check(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []routing.ConflictReport{}
	}
	h.writeJSON(w, http.StatusOK, CheckResponse{
		NodeID:    id,
		OK:        len(conflicts) == 0,
		Conflicts: conflicts,
	})
}

func (h *Handler) handleListSlugs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	slugs, redirects, err := h.service.ListSlugs(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := SlugsResponse{NodeID: id, Slugs: slugs, Redirects: redirects}
	if resp.Slugs == nil {
		resp.Slugs = []domain.SlugRecord{}
	}
	if resp.Redirects == nil {
		resp.Redirects = []domain.SlugRedirect{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResolveSlug(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	locale := chi.URLParam(r, "locale")

	text, err := h.service.ResolveSlug(r.Context(), id, locale)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ResolvedSlugResponse{NodeID: id, Locale: locale, Slug: text})
}

func (h *Handler) handlePinSlug(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	locale := chi.URLParam(r, "locale")

	var req PinSlugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Text == "" {
		h.writeError(w, http.StatusBadRequest, "text is required", "validation_error")
		return
	}

	rec, err := h.service.PinCustomSlug(r.Context(), id, locale, req.Text)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleUnpinSlug(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	locale := chi.URLParam(r, "locale")

	res, err := h.service.UnpinCustomSlug(r.Context(), id, locale)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeServiceError maps a service error to a status code.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if fatal, ok := slugbuild.IsFatalConflict(err); ok {
		h.writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     fatal.Error(),
			Code:      "slug_conflict",
			Conflicts: fatal.Conflicts,
		})
		return
	}

	switch {
	case store.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case store.IsCustomSlug(err):
		h.writeError(w, http.StatusConflict, err.Error(), "custom_slug")
	case isValidationError(err):
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", "internal_error")
	}
}

var validationErrors = []error{
	routing.ErrUnknownTrigger,
	routing.ErrTriggerNodeRequired,
	routing.ErrTriggerSiteRequired,
	routing.ErrTriggerTypesRequired,
	scheduler.ErrLocaleNotConfigured,
	scheduler.ErrEmptySlug,
	slugbuild.ErrSiteMismatch,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
