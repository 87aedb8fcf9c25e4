package bus

import (
	"context"
	"fmt"
	"log/slog"

	"modeltrain/internal/observability"
	"modeltrain/internal/queue"
)

// Subscriber creates pull subscriptions.
type Subscriber interface {
	SubscribeSync(subject string) (Subscription, error)
}

// Enqueuer accepts triggers, blocking while full.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte, source string) (queue.Trigger, error)
	Len() int
}

// TriggerConsumer moves trigger messages from the bus into the job queue.
type TriggerConsumer struct {
	sub     Subscriber
	queue   Enqueuer
	subject string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewTriggerConsumer creates a consumer for subject. metrics may be nil.
func NewTriggerConsumer(sub Subscriber, q Enqueuer, subject string, metrics *observability.Metrics) *TriggerConsumer {
	return &TriggerConsumer{
		sub:     sub,
		queue:   q,
		subject: subject,
		metrics: metrics,
		logger:  slog.With("component", "trigger-consumer", "subject", subject),
	}
}

// Run subscribes and enqueues every message until ctx is done. A full queue
// blocks the loop and the backlog waits in the subscription's pending
// buffer; messages are never dropped once received.
func (c *TriggerConsumer) Run(ctx context.Context) error {
	sub, err := c.sub.SubscribeSync(c.subject)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug("Unsubscribe failed", "error", err)
		}
	}()

	c.logger.Info("Listening for triggers")
	for {
		msg, err := sub.NextMsg(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Trigger consumer stopped")
				return nil
			}
			return fmt.Errorf("receive trigger: %w", err)
		}

		trigger, err := c.queue.Enqueue(ctx, msg.Data, queue.SourceBus)
		if err != nil {
			// Only a done context gets here.
			c.logger.Warn("Trigger not queued", "error", err)
			return nil
		}
		c.logger.Info("Trigger queued", "seq", trigger.Seq, "bytes", len(msg.Data))
		if c.metrics != nil {
			c.metrics.RecordTrigger(ctx, queue.SourceBus)
			c.metrics.RecordQueueDepth(ctx, int64(c.queue.Len()))
		}
	}
}
