package api

import (
	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
)

// =============================================================================
// Request Types
// =============================================================================

// PinSlugRequest is the request body for pinning a custom slug.
type PinSlugRequest struct {
	Text string `json:"text"`
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error     string                   `json:"error"`
	Code      string                   `json:"code"`
	Conflicts []routing.ConflictReport `json:"conflicts,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// CheckResponse is the result of a pre-publish check.
type CheckResponse struct {
	NodeID    string                   `json:"node_id"`
	OK        bool                     `json:"ok"`
	Conflicts []routing.ConflictReport `json:"conflicts"`
}

// SlugsResponse lists a node's slugs and redirects.
type SlugsResponse struct {
	NodeID    string                `json:"node_id"`
	Slugs     []domain.SlugRecord   `json:"slugs"`
	Redirects []domain.SlugRedirect `json:"redirects"`
}

// ResolvedSlugResponse is the slug a node is served under for a locale.
type ResolvedSlugResponse struct {
	NodeID string `json:"node_id"`
	Locale string `json:"locale"`
	Slug   string `json:"slug"`
}
