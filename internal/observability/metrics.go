package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service metrics:
// - Latency: job, stage and HTTP durations
// - Traffic: triggers received, jobs run, completions published
// - Errors: failed jobs by stage, failed publishes and notifications
// - Saturation: queue depth and running jobs
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter
	StageDuration  metric.Float64Histogram

	// Intake and delivery metrics
	TriggersReceived   metric.Int64Counter
	QueueDepth         metric.Int64Gauge
	PublishesTotal     metric.Int64Counter
	NotificationsTotal metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("modeltrain")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"training_job_duration_seconds",
		metric.WithDescription("Training job duration from dequeue to terminal state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(10, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"training_jobs_total",
		metric.WithDescription("Total number of training jobs started"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"training_job_errors_total",
		metric.WithDescription("Total number of failed training jobs by failed stage"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"training_jobs_active",
		metric.WithDescription("Number of running training jobs (0 or 1)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageDuration, err = meter.Float64Histogram(
		"training_stage_duration_seconds",
		metric.WithDescription("Duration of each job stage in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	// Intake and delivery metrics
	m.TriggersReceived, err = meter.Int64Counter(
		"training_triggers_received_total",
		metric.WithDescription("Total triggers accepted into the job queue"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueueDepth, err = meter.Int64Gauge(
		"training_queue_depth",
		metric.WithDescription("Current number of triggers waiting in the job queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PublishesTotal, err = meter.Int64Counter(
		"training_completions_published_total",
		metric.WithDescription("Completion events published on the bus"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotificationsTotal, err = meter.Int64Counter(
		"training_notifications_total",
		metric.WithDescription("Outcome webhook deliveries"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobStarted records a job leaving idle.
func (m *Metrics) RecordJobStarted(ctx context.Context, source string) {
	m.JobsTotal.Add(ctx, 1, metric.WithAttributes(sourceAttr(source)))
	m.JobsActive.Add(ctx, 1)
}

// RecordJobCompleted records a job reaching a terminal state. failedStage is
// empty for successful jobs.
func (m *Metrics) RecordJobCompleted(ctx context.Context, success bool, failedStage string, durationSeconds float64) {
	m.JobDuration.Record(ctx, durationSeconds, WithSuccess(success))
	m.JobsActive.Add(ctx, -1)

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, WithStage(failedStage))
	}
}

// RecordStage records how long one stage of a job took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, durationSeconds float64) {
	m.StageDuration.Record(ctx, durationSeconds, WithStage(stage))
}

// RecordTrigger records a trigger accepted into the queue.
func (m *Metrics) RecordTrigger(ctx context.Context, source string) {
	m.TriggersReceived.Add(ctx, 1, metric.WithAttributes(sourceAttr(source)))
}

// RecordQueueDepth records the current queue length.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int64) {
	m.QueueDepth.Record(ctx, depth)
}

// RecordPublish records a completion publish attempt.
func (m *Metrics) RecordPublish(ctx context.Context, success bool) {
	m.PublishesTotal.Add(ctx, 1, WithSuccess(success))
}

// RecordNotification records an outcome webhook delivery attempt.
func (m *Metrics) RecordNotification(ctx context.Context, success bool) {
	m.NotificationsTotal.Add(ctx, 1, WithSuccess(success))
}
