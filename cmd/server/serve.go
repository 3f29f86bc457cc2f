package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/handler"
	"github.com/rl1809/scrap-lifecycle/internal/adapter/metrics"
	"github.com/rl1809/scrap-lifecycle/internal/adapter/storage"
	"github.com/rl1809/scrap-lifecycle/internal/config"
	"github.com/rl1809/scrap-lifecycle/internal/core/service"
	"github.com/rl1809/scrap-lifecycle/internal/logger"
	"github.com/rl1809/scrap-lifecycle/internal/platform/otel"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, otel.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := openStore(ctx, cfg, log, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer store.Close()

	var recorder port.MetricsRecorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec, err := metrics.NewPrometheusRecorder(nil)
		if err != nil {
			return err
		}
		recorder = rec
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(recorder),
		service.WithStrictValidation(cfg.Lifecycle.StrictValidation),
		service.WithMaxRetries(cfg.Lifecycle.MaxRetries),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()

		cache := storage.NewRedisAdapter(rdb, cfg.Redis.IdempotencyTTL)
		if err := cache.Ping(ctx); err != nil {
			return err
		}
		log.Info("connected to redis", "addr", cfg.Redis.Addr)
		opts = append(opts, service.WithCache(cache))
	}

	lifecycleService := service.NewLifecycleService(store, opts...)
	statsService := service.NewStatsService(store, recorder, nil).WithDefaultWindow(cfg.Stats.WindowDays)

	grpcServer, healthServer := handler.NewGRPCServer(handler.NewGRPCHandler(lifecycleService, statsService), log)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewHTTPHandler(lifecycleService, statsService, log).Routes(cfg.Metrics.Enabled),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", "err", err)
	}
	log.Info("HTTP server stopped")

	stopGRPC(grpcServer.GracefulStop, grpcServer.Stop, 5*time.Second, log)
	log.Info("gRPC server stopped")
	return nil
}

// stopGRPC waits for in-flight RPCs but forces the stop after timeout.
func stopGRPC(graceful, force func(), timeout time.Duration, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		graceful()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("gRPC graceful stop timed out, forcing")
		force()
	}
}
