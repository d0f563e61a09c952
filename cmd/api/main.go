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

	httpadapter "github.com/kirillkom/lifeforge-rag/internal/adapters/http"
	"github.com/kirillkom/lifeforge-rag/internal/bootstrap"
	"github.com/kirillkom/lifeforge-rag/internal/config"
	"github.com/kirillkom/lifeforge-rag/internal/observability/logging"
	"github.com/kirillkom/lifeforge-rag/internal/observability/metrics"
)

const service = "api"

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		logging.NewJSONLogger(service, "info").Error("env_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewHTTPServerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: service, Logger: logger, Metrics: m})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Query:    app.QueryUC,
		Ingest:   app.IngestUC,
		Uploader: app.UploadUC,
		Slots:    app.Store,
		Eval:     app.EvalUC,
	}, httpadapter.WithMetrics(m), httpadapter.WithLogger(logger))

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      time.Duration(cfg.OllamaTimeoutSec+30) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listening", "addr", server.Addr, "instance_id", app.InstanceID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if app.Queue != nil {
		g.Go(func() error {
			return app.Queue.SubscribeSlotUpdates(gctx, app.InstanceID, app.SyncUC.HandleSlotUpdated)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("api_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("api_stopped")
}
