// Package api provides the service-mode HTTP surface: probes, status and
// manual triggers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"modeltrain/internal/apperrors"
	"modeltrain/internal/health"
	"modeltrain/internal/job"
	"modeltrain/internal/observability"
	"modeltrain/internal/queue"
)

// maxRequestBodySize limits trigger payloads to 1MB.
const maxRequestBodySize = 1 << 20

// DefaultEnqueueTimeout bounds how long a trigger request waits for queue space.
const DefaultEnqueueTimeout = 5 * time.Second

// Triggers is the job queue as seen by the API.
type Triggers interface {
	Enqueue(ctx context.Context, payload []byte, source string) (queue.Trigger, error)
	Len() int
	Cap() int
}

// StatusSource reports coordinator state.
type StatusSource interface {
	Snapshot() job.Snapshot
}

// QueueStatus describes the trigger queue.
type QueueStatus struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	job.Snapshot
	Queue QueueStatus `json:"queue"`
}

// TriggerResponse is the body of an accepted POST /v1/triggers.
type TriggerResponse struct {
	Seq        uint64    `json:"seq"`
	ReceivedAt time.Time `json:"receivedAt"`
	QueueDepth int       `json:"queueDepth"`
}

// Handler contains the HTTP handlers.
type Handler struct {
	triggers       Triggers
	status         StatusSource
	metrics        *observability.Metrics
	health         *health.Checker
	enqueueTimeout time.Duration
}

// NewHandler creates a handler. A zero enqueueTimeout uses DefaultEnqueueTimeout.
func NewHandler(triggers Triggers, status StatusSource, metrics *observability.Metrics, checker *health.Checker, enqueueTimeout time.Duration) *Handler {
	if enqueueTimeout <= 0 {
		enqueueTimeout = DefaultEnqueueTimeout
	}
	return &Handler{
		triggers:       triggers,
		status:         status,
		metrics:        metrics,
		health:         checker,
		enqueueTimeout: enqueueTimeout,
	}
}

// CreateTrigger handles POST /v1/triggers. The body, if any, is kept as the
// trigger payload.
func (h *Handler) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(payload) > 0 && !json.Valid(payload) {
		writeError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.enqueueTimeout)
	defer cancel()

	trigger, err := h.triggers.Enqueue(ctx, payload, queue.SourceAPI)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
			err = apperrors.Unavailable("queue", "trigger queue is full")
		}
		h.handleError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordTrigger(r.Context(), queue.SourceAPI)
		h.metrics.RecordQueueDepth(r.Context(), int64(h.triggers.Len()))
	}

	slog.Info("Trigger accepted", "component", "api", "seq", trigger.Seq)
	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Seq:        trigger.Seq,
		ReceivedAt: trigger.ReceivedAt,
		QueueDepth: h.triggers.Len(),
	})
}

// Status handles GET /v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Snapshot: h.status.Snapshot(),
		Queue: QueueStatus{
			Depth:    h.triggers.Len(),
			Capacity: h.triggers.Cap(),
		},
	})
}

// Livez handles GET /livez.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz. Returns 503 when a required dependency is down.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps err to a status code and writes it.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	writeError(w, status, err.Error())
}
