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

	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/api"
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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageDriver),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hours, err := appointment.ParseClinicHours(cfg.Clinic.Timezone, cfg.Clinic.Open, cfg.Clinic.Close, cfg.Clinic.Days)
	if err != nil {
		logger.Fatal("invalid clinic hours", zap.Error(err))
	}

	// Connect storage
	dbCtx, cancelDB := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := db.Open(dbCtx, cfg)
	cancelDB()
	if err != nil {
		logger.Fatal("storage connection error", zap.Error(err))
	}
	defer store.Close()
	logger.Info("connected to storage", zap.String("driver", store.Driver))

	// Connect Redis
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

	svc := appointment.NewService(store.Repo, notifier, logger,
		appointment.WithClinicHours(hours),
		appointment.WithSlotStep(cfg.SlotStep),
		appointment.WithIdempotency(redisclient.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)),
	)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Storage: store.Repo,
		Redis:   api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Metrics: collector,
		Logger:  logger,
		Env:     cfg.Env,
		Version: cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := notifier.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notifier shutdown error", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
