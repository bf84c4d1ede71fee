package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
	"github.com/hackgods/dental-appointment-scheduling/internal/config"
	"github.com/hackgods/dental-appointment-scheduling/internal/db"
	"github.com/hackgods/dental-appointment-scheduling/internal/logging"
	"github.com/hackgods/dental-appointment-scheduling/internal/metrics"
	"github.com/hackgods/dental-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/dental-appointment-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("lead", cfg.ReminderLead),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCtx, cancelDB := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := db.Open(dbCtx, cfg)
	cancelDB()
	if err != nil {
		logger.Fatal("storage connection error", zap.Error(err))
	}
	defer store.Close()
	logger.Info("connected to storage", zap.String("driver", store.Driver))

	rdb, err := redisclient.Connect(rootCtx, cfg)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	collector := metrics.NewCollector("dental")
	notifier, err := notify.NewPipeline(notify.PipelineConfig{
		RabbitMQURL: cfg.RabbitMQURL,
		Exchange:    cfg.NotifyExchange,
		QueueSize:   cfg.NotifyQueueSize,
		Timeout:     cfg.NotifyTimeout,
		Breaker: notify.BreakerConfig{
			FailureThreshold: uint32(cfg.BreakerFailures),
			Timeout:          cfg.BreakerTimeout,
		},
	}, logger, collector.ObserveNotification)
	if err != nil {
		logger.Fatal("notifier setup error", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := notifier.Shutdown(ctx); err != nil {
			logger.Warn("notifier shutdown error", zap.Error(err))
		}
	}()

	if cfg.WorkerMetricsPort != "" {
		metricsSrv := newMetricsServer(cfg.WorkerMetricsPort, collector)
		go func() {
			logger.Info("metrics listener started", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(ctx); err != nil {
				logger.Warn("metrics listener shutdown error", zap.Error(err))
			}
		}()
	}

	svc := appointment.NewService(store.Repo, notifier, logger)
	// keep the dedupe key a bit longer than the window it protects
	ledger := redisclient.NewReminderLedger(rdb, cfg.ReminderLead+time.Hour)

	// Run once at startup
	runOnce(rootCtx, logger, svc, ledger, cfg.ReminderLead, collector)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc, ledger, cfg.ReminderLead, collector)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, svc *appointment.Service, ledger appointment.ReminderLedger, lead time.Duration, m *metrics.Collector) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendReminders(runCtx, lead, ledger)
	if err != nil {
		logger.Error("reminder run error", zap.Error(err))
		return
	}
	m.RemindersSent.Add(float64(sent))
	logger.Info("reminder run complete", zap.Int("sent", sent), zap.Duration("took", time.Since(start)))
}

func newMetricsServer(port string, c *metrics.Collector) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", c.Handler())
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
