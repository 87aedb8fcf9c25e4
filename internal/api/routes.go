package api

import (
	"net/http"
	"time"

	"modeltrain/internal/health"
	"modeltrain/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Triggers       Triggers
	Status         StatusSource
	Metrics        *observability.Metrics
	HealthChecker  *health.Checker
	APIKey         string
	EnqueueTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Triggers, cfg.Status, cfg.Metrics, cfg.HealthChecker, cfg.EnqueueTimeout)

	mux := http.NewServeMux()

	// Probes - no auth
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	auth := BearerAuth(cfg.APIKey)
	mux.Handle("GET /v1/status", auth(http.HandlerFunc(handler.Status)))
	mux.Handle("POST /v1/triggers", auth(http.HandlerFunc(handler.CreateTrigger)))

	return chain(mux, Recover(), Instrument(cfg.Metrics), RequireJSON())
}
