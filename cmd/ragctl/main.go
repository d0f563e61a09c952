package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/lifeforge-rag/internal/adapters/cli"
	"github.com/kirillkom/lifeforge-rag/internal/bootstrap"
	"github.com/kirillkom/lifeforge-rag/internal/config"
	"github.com/kirillkom/lifeforge-rag/internal/observability/logging"
)

const service = "ragctl"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *bootstrap.App
	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Services, error) {
		if err := config.LoadEnvFiles(); err != nil {
			return nil, err
		}
		cfg := config.Load()
		logger := logging.NewJSONLoggerTo(os.Stderr, service, "warn")
		slog.SetDefault(logger)

		var err error
		app, err = bootstrap.New(ctx, cfg, bootstrap.Options{Service: service, Logger: logger, SkipQueue: true})
		if err != nil {
			return nil, err
		}
		return &cli.Services{
			Query:    app.QueryUC,
			Ingest:   app.IngestUC,
			Uploader: app.UploadUC,
			Slots:    app.Store,
			Eval:     app.EvalUC,
		}, nil
	})
	root.SetOut(os.Stdout)

	err := root.ExecuteContext(ctx)
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
