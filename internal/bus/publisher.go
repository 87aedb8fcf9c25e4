package bus

import (
	"context"
	"log/slog"

	"modeltrain/internal/apperrors"
	"modeltrain/internal/observability"
)

// RawPublisher is the transport used by Publisher.
type RawPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Publisher publishes completion events.
type Publisher struct {
	conn    RawPublisher
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a publisher over conn. metrics may be nil.
func NewPublisher(conn RawPublisher, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		conn:    conn,
		metrics: metrics,
		logger:  slog.With("component", "publisher"),
	}
}

// Publish sends payload on subject. Errors match apperrors.ErrPublish.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	err := p.conn.Publish(ctx, subject, payload)
	if p.metrics != nil {
		p.metrics.RecordPublish(ctx, err == nil)
	}
	if err != nil {
		return apperrors.Publish(subject, err)
	}
	p.logger.Debug("Published", "subject", subject, "bytes", len(payload))
	return nil
}
