// Package bus connects the service to the NATS message bus: it consumes
// training triggers and publishes completion events.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"modeltrain/internal/apperrors"
	"modeltrain/internal/config"
	"modeltrain/pkg/backoff"
)

// DefaultPublishTimeout bounds the flush after a publish when the caller's
// context carries no deadline.
const DefaultPublishTimeout = 5 * time.Second

// Subscription is an active pull subscription. NextMsg blocks until a
// message arrives or ctx is done.
type Subscription interface {
	NextMsg(ctx context.Context) (*nats.Msg, error)
	Unsubscribe() error
}

// Conn is a NATS connection shared by the trigger consumer and the
// publisher.
type Conn struct {
	nc             *nats.Conn
	publishTimeout time.Duration
	pendingLimit   int
	logger         *slog.Logger
}

// Dial connects to the bus. The initial connect is retried with exponential
// backoff up to cfg.ConnectAttempts; after that the client reconnects on its
// own.
func Dial(ctx context.Context, cfg config.BusConfig) (*Conn, error) {
	logger := slog.With("component", "bus")

	opts, err := connectOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	var nc *nats.Conn
	err = backoff.Retry(ctx, cfg.ConnectAttempts, nil, func(context.Context) error {
		var cerr error
		nc, cerr = nats.Connect(cfg.URL, opts...)
		return cerr
	}, func(attempt int, err error) {
		logger.Warn("Bus connect failed, retrying", "attempt", attempt, "url", cfg.URL, "error", err)
	})
	if err != nil {
		return nil, apperrors.Connectivity("bus connect", cfg.URL, err)
	}

	logger.Info("Connected to bus", "url", nc.ConnectedUrlRedacted())
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	pendingLimit := cfg.PendingLimit
	if pendingLimit == 0 {
		pendingLimit = -1
	}
	return &Conn{nc: nc, publishTimeout: publishTimeout, pendingLimit: pendingLimit, logger: logger}, nil
}

func connectOptions(cfg config.BusConfig, logger *slog.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Bus reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("Bus connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("Bus async error", "subject", subject, "error", err)
		}),
	}

	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.NKeySeedFile != "" {
		opt, err := nats.NkeyOptionFromSeed(cfg.NKeySeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load nkey seed: %w", err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// Publish sends data on subject and flushes, so a nil return means the
// server received it. There is no subscriber acknowledgement. A ctx without
// a deadline gets the connection's publish timeout for the flush.
func (c *Conn) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.publishTimeout)
		defer cancel()
	}
	return c.nc.FlushWithContext(ctx)
}

// SubscribeSync opens a pull subscription on subject. Messages the caller
// has not read yet stay in the client's pending buffer, bounded by the
// configured pending limit (unbounded by default).
func (c *Conn) SubscribeSync(subject string) (Subscription, error) {
	sub, err := c.nc.SubscribeSync(subject)
	if err != nil {
		return nil, err
	}
	if err := sub.SetPendingLimits(c.pendingLimit, -1); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to set pending limits: %w", err)
	}
	return &pullSubscription{sub: sub}, nil
}

type pullSubscription struct {
	sub *nats.Subscription
}

func (p *pullSubscription) NextMsg(ctx context.Context) (*nats.Msg, error) {
	return p.sub.NextMsgWithContext(ctx)
}

func (p *pullSubscription) Unsubscribe() error {
	return p.sub.Unsubscribe()
}

// Ready reports whether the connection is currently established.
func (c *Conn) Ready(context.Context) error {
	if c.nc.IsConnected() {
		return nil
	}
	return fmt.Errorf("bus connection %s", c.nc.Status())
}

// Close drains subscriptions and pending publishes, then closes.
func (c *Conn) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	err := c.nc.Drain()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
