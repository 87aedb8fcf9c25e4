package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"modeltrain/internal/job"
	"modeltrain/internal/observability"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature-256"

// Defaults for suppressing callbacks to an endpoint that keeps failing.
const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = time.Minute
)

// Webhook posts one event per finished job. Delivery is attempted once; after
// repeated failures callbacks are skipped until the cooldown passes.
type Webhook struct {
	url     string
	key     string
	bucket  string
	client  *http.Client
	breaker *breaker
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWebhook creates a notifier posting to url. key, if set, signs each body.
func NewWebhook(url, key, bucket string, timeout time.Duration, metrics *observability.Metrics) *Webhook {
	return &Webhook{
		url:    url,
		key:    key,
		bucket: bucket,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: newBreaker(DefaultFailureThreshold, DefaultCooldown),
		metrics: metrics,
		logger:  slog.With("component", "notify"),
	}
}

// Notify implements job.Notifier.
func (w *Webhook) Notify(ctx context.Context, res job.Result) error {
	if !w.breaker.allow() {
		if w.metrics != nil {
			w.metrics.RecordNotification(ctx, false)
		}
		return ErrSuppressed
	}

	err := w.send(ctx, NewEvent(res, w.bucket))
	if state, changed := w.breaker.record(err); changed {
		w.logger.Warn("Callback breaker changed state", "state", state.String(), "url", w.url)
	}
	if w.metrics != nil {
		w.metrics.RecordNotification(ctx, err == nil)
	}
	if err == nil {
		w.logger.Debug("Outcome delivered", "jobId", res.ID, "outcome", res.Outcome)
	}
	return err
}

func (w *Webhook) send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set("Ce-Specversion", event.SpecVersion)
	req.Header.Set("Ce-Type", event.Type)
	req.Header.Set("Ce-Source", event.Source)
	req.Header.Set("Ce-Id", event.ID)
	if w.key != "" {
		req.Header.Set(SignatureHeader, Sign(body, w.key))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", event.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// HTTPError is a non-2xx callback response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("callback returned HTTP %d", e.StatusCode)
}
