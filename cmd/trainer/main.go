// trainer runs log-model training jobs, either once (batch) or on demand from
// the message bus (service).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"modeltrain/internal/api"
	"modeltrain/internal/bus"
	"modeltrain/internal/config"
	"modeltrain/internal/health"
	"modeltrain/internal/job"
	"modeltrain/internal/notify"
	"modeltrain/internal/objectstore"
	"modeltrain/internal/observability"
	"modeltrain/internal/queue"
	"modeltrain/internal/trainer"
)

// errJobFailed marks a batch run whose job failed; the job already logged why.
var errJobFailed = errors.New("job failed")

func main() {
	mode := flag.String("mode", "", "run mode, service or batch (overrides MODE)")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(*mode, level); err != nil {
		if !errors.Is(err, errJobFailed) {
			slog.Error("Trainer failed", "error", err)
		}
		os.Exit(1)
	}
}

// components are the long-lived dependencies shared by both modes.
type components struct {
	cfg         *config.Config
	metrics     *observability.Metrics
	metricsHTTP http.Handler
	store       objectstore.Store
	gateway     *objectstore.Gateway
	trainer     trainer.Trainer
	conn        *bus.Conn
	tracker     *job.Tracker
	coordinator *job.Coordinator
}

func run(modeOverride string, level *slog.LevelVar) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(modeOverride)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(cfg.LogLevel)
	slog.Info("Starting trainer", "mode", cfg.Mode, "epochs", cfg.Training.Epochs,
		"store", cfg.Store.Backend, "trainerBackend", cfg.Trainer.Backend)

	c, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	if cfg.Mode == config.ModeBatch {
		if err := c.coordinator.RunBatch(ctx); err != nil {
			return fmt.Errorf("%w: %w", errJobFailed, err)
		}
		return nil
	}
	return serve(ctx, c)
}

func setup(ctx context.Context, cfg *config.Config) (c *components, err error) {
	c = &components{cfg: cfg, tracker: job.NewTracker()}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	c.metrics, c.metricsHTTP, err = observability.NewMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	c.store, err = objectstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	c.gateway = objectstore.NewGateway(c.store)

	c.trainer, err = trainer.New(ctx, cfg.Trainer)
	if err != nil {
		return nil, fmt.Errorf("init trainer: %w", err)
	}

	c.conn, err = bus.Dial(ctx, cfg.Bus)
	if err != nil {
		return nil, err
	}

	opts := []job.Option{job.WithMetrics(c.metrics), job.WithTracker(c.tracker)}
	if cfg.Callback.URL != "" {
		webhook := notify.NewWebhook(cfg.Callback.URL, cfg.Callback.Key, cfg.Training.ModelsBucket, cfg.Callback.Timeout, c.metrics)
		opts = append(opts, job.WithNotifier(webhook))
		slog.Info("Outcome callbacks enabled", "url", cfg.Callback.URL, "signed", cfg.Callback.Key != "")
	}

	c.coordinator = job.NewCoordinator(job.ConfigFrom(cfg), c.gateway,
		c.trainer, bus.NewPublisher(c.conn, c.metrics), opts...)
	return c, nil
}

func (c *components) close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			slog.Warn("Bus close error", "error", err)
		}
	}
	if c.trainer != nil {
		if err := c.trainer.Close(); err != nil {
			slog.Warn("Trainer close error", "error", err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			slog.Warn("Object store close error", "error", err)
		}
	}
}

func serve(ctx context.Context, c *components) error {
	cfg := c.cfg
	q := queue.New(cfg.QueueCapacity)

	healthChecker := health.NewChecker().
		Require("bus", c.conn.Ready).
		Require("store", func(ctx context.Context) error {
			return c.gateway.Ready(ctx, cfg.Training.TrainingBucket)
		}).
		Observe("trainer", c.trainer.Ready)

	router := api.NewRouter(api.RouterConfig{
		Triggers:      q,
		Status:        c.tracker,
		Metrics:       c.metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.Server.APIKey,
	})
	if cfg.Server.APIKey == "" {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", c.metricsHTTP)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.Server.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"API": apiServer, "metrics": metricsServer} {
		go func() {
			slog.Info("Starting "+name+" server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	shutdownServers := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		for _, srv := range []*http.Server{apiServer, metricsServer} {
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server shutdown error", "addr", srv.Addr, "error", err)
			}
		}
	}

	// Consumer and coordinator stop together; the coordinator finishes any
	// in-flight job before returning.
	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		return bus.NewTriggerConsumer(c.conn, q, cfg.Bus.TriggerSubject, c.metrics).Run(gctx)
	})
	g.Go(func() error {
		return c.coordinator.Run(gctx, q)
	})

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		runErr = err
	case <-gctx.Done():
		if ctx.Err() == nil {
			slog.Error("Worker loop stopped unexpectedly")
		}
	}

	healthChecker.SetShuttingDown()
	stopLoops()

	if state := c.tracker.State(); state != job.StateIdle {
		slog.Info("Waiting for in-flight job", "state", state)
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if n := q.Len(); n > 0 {
		slog.Warn("Dropping queued triggers", "count", n)
	}

	shutdownServers()
	slog.Info("Shutdown complete")
	return runErr
}
