package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/lifeforge-rag/internal/config"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
	"github.com/kirillkom/lifeforge-rag/internal/core/usecase"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/embedcache"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/lexical"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/slot"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/persistence/snapshot"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/storage/localfs"
)

// Metrics is the observer set every process hands to the wiring.
type Metrics interface {
	ports.QueryMetrics
	ports.IngestMetrics
	embedcache.Recorder
	resilience.Observer
}

type Options struct {
	Service string
	Logger  *slog.Logger
	Metrics Metrics
	// SkipQueue keeps the process off NATS even when NATS_URL is set.
	SkipQueue bool
}

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	InstanceID string

	Store *slot.Store
	// Queue is nil when NATS is not configured.
	Queue *nats.Queue

	QueryUC   *usecase.QueryUseCase
	IngestUC  *usecase.IngestUseCase
	UploadUC  *usecase.UploadDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	EvalUC    *usecase.EvaluationUseCase
	SyncUC    *usecase.SlotSyncUseCase

	closeFn []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := opts.Service
	if service == "" {
		service = "lifeforge"
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		InstanceID: service + "-" + uuid.NewString()[:8],
	}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	var (
		registry ports.DocumentRegistry
		logs     ports.QueryLogStore
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.onClose(func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		registry, logs = repositories(db)
	} else {
		logger.Warn("postgres_disabled", "reason", "POSTGRES_DSN is empty; document registry and query log are off")
	}

	uploads, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	indexes, err := localfs.New(filepath.Join(cfg.DataDir, "indexes"))
	if err != nil {
		return nil, fmt.Errorf("init index storage: %w", err)
	}

	var observer resilience.Observer
	var recorder embedcache.Recorder
	var ingestMetrics ports.IngestMetrics
	queryOpts := []usecase.QueryOption{usecase.WithQueryLogger(logger)}
	if opts.Metrics != nil {
		observer = opts.Metrics
		recorder = opts.Metrics
		ingestMetrics = opts.Metrics
		queryOpts = append(queryOpts, usecase.WithQueryMetrics(opts.Metrics))
	}
	if logs != nil {
		queryOpts = append(queryOpts, usecase.WithQueryLog(logs, registry))
	}

	executorOpts := []resilience.Option{resilience.WithLogger(logger)}
	if observer != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(observer))
	}
	executor := resilience.NewExecutor(resilience.FromSettings(resilience.Settings{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		BreakerEnabled:      cfg.BreakerEnabled,
	}), executorOpts...)

	var events ports.EventPublisher
	if cfg.NATSURL != "" && !opts.SkipQueue {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			IngestSubject:      cfg.NATSIngestSubject,
			SlotSubject:        cfg.NATSSlotSubject,
			WorkerGroup:        cfg.NATSWorkerGroup,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.onClose(queue.Close)
		app.Queue = queue
		events = queue
	}

	client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, time.Duration(cfg.OllamaTimeoutSec)*time.Second, executor)
	var embedder ports.Embedder = ollama.NewEmbedder(client, cfg.EmbeddingDim)
	if cfg.EmbeddingCacheSize > 0 {
		cached, err := embedcache.New(embedder, cfg.EmbeddingCacheSize, recorder)
		if err != nil {
			return nil, err
		}
		embedder = cached
	}
	generator := ollama.NewGenerator(client)

	splitter, err := chunking.NewSplitter(cfg.PDFChunkSize, cfg.PDFChunkOverlap)
	if err != nil {
		return nil, err
	}

	app.Store = slot.NewStore(cfg.EmbeddingDim, lexical.Params{
		K1:              cfg.BM25K1,
		B:               cfg.BM25B,
		RemoveStopwords: cfg.RemoveStopwords,
	}, snapshot.New(indexes, logger), logger)

	loaded := app.Store.LoadAll(ctx, cfg.DefaultSlots)
	logger.Info("slots_loaded", "slots", loaded, "configured", cfg.DefaultSlots)

	app.QueryUC = usecase.NewQueryUseCase(app.Store, embedder, generator, retrievalConfig(cfg), queryOpts...)
	app.IngestUC = usecase.NewIngestUseCase(app.Store, registry, events, ingestMetrics, app.InstanceID, cfg.EmbeddingDim, logger)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(uploads, pdf.NewExtractor(uploads), splitter, embedder, app.IngestUC, logger)
	app.UploadUC = usecase.NewUploadDocumentUseCase(uploads, events, app.ProcessUC)
	app.EvalUC = usecase.NewEvaluationUseCase(registry, logs)
	app.SyncUC = usecase.NewSlotSyncUseCase(app.Store, logger)

	ok = true
	return app, nil
}

func retrievalConfig(cfg config.Config) usecase.RetrievalConfig {
	return usecase.RetrievalConfig{
		HybridEnabled:          cfg.HybridSearchEnabled,
		LexicalWeight:          cfg.BM25Weight,
		DenseWeight:            cfg.DenseWeight,
		KTotal:                 cfg.KTotal,
		KLexicalCandidates:     cfg.KBM25Candidates,
		KDenseCandidates:       cfg.KDenseCandidates,
		RRFK:                   cfg.RRFKConstant,
		MinSimilarity:          cfg.MinSimilarityThreshold,
		HallucinationThreshold: cfg.HallucinationThreshold,
	}
}

func repositories(db *sql.DB) (ports.DocumentRegistry, ports.QueryLogStore) {
	return postgres.NewDocumentRepository(db), postgres.NewQueryLogRepository(db)
}

func (a *App) onClose(fn func()) {
	a.closeFn = append(a.closeFn, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}
