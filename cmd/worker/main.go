package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/lifeforge-rag/internal/bootstrap"
	"github.com/kirillkom/lifeforge-rag/internal/config"
	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/observability/logging"
	"github.com/kirillkom/lifeforge-rag/internal/observability/metrics"
)

const (
	service    = "worker"
	jobTimeout = 10 * time.Minute
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		logging.NewJSONLogger(service, "info").Error("env_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.NATSURL == "" {
		logger.Error("worker_requires_nats", "error", "NATS_URL is empty")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: service, Logger: logger, Metrics: m})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	handleJob := func(handlerCtx context.Context, job domain.IngestJob) error {
		if !job.EnqueuedAt.IsZero() {
			m.ObserveQueueLag(time.Since(job.EnqueuedAt))
		}
		m.StartJob()
		started := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()
		result, err := app.ProcessUC.ProcessJob(processCtx, job)
		m.FinishJob(time.Since(started), err)
		if err != nil {
			logger.Error("ingest_job_failed", "slot", job.Slot, "filename", job.Filename, "error", err)
			return err
		}
		logger.Info("ingest_job_done", "slot", job.Slot, "filename", job.Filename, "num_chunks", result.NumChunks)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSIngestSubject, "group", cfg.NATSWorkerGroup, "instance_id", app.InstanceID)
		return app.Queue.SubscribeIngestJobs(gctx, handleJob)
	})
	g.Go(func() error {
		return app.Queue.SubscribeSlotUpdates(gctx, app.InstanceID, app.SyncUC.HandleSlotUpdated)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
