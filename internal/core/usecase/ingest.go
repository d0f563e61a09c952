package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// IngestUseCase replaces a slot's corpus with a new chunk set.
type IngestUseCase struct {
	store      ports.CorpusStore
	registry   ports.DocumentRegistry
	events     ports.EventPublisher
	metrics    ports.IngestMetrics
	instanceID string
	dim        int
	logger     *slog.Logger
	now        func() time.Time
}

func NewIngestUseCase(
	store ports.CorpusStore,
	registry ports.DocumentRegistry,
	events ports.EventPublisher,
	metrics ports.IngestMetrics,
	instanceID string,
	dim int,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		store:      store,
		registry:   registry,
		events:     events,
		metrics:    metrics,
		instanceID: instanceID,
		dim:        dim,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest builds and swaps in the slot's indexes, then registers the document
// and announces the update. Only the swap decides success; registry and
// broadcast failures are logged.
func (uc *IngestUseCase) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	started := uc.now()
	result, err := uc.replace(ctx, req)
	if uc.metrics != nil {
		uc.metrics.ObserveIngest(req.Slot, len(req.Chunks), err == nil, uc.now().Sub(started).Seconds())
	}
	if err != nil {
		return nil, err
	}

	if uc.registry != nil {
		id, err := uc.registry.SaveDocument(ctx, domain.DocumentRecord{
			Slot:       req.Slot,
			Filename:   req.Filename,
			UploadedAt: started.UTC(),
			NumChunks:  result.NumChunks,
			NumImages:  result.NumImages,
		})
		if err != nil {
			uc.logger.Warn("document_register_failed", "slot", req.Slot, "filename", req.Filename, "error", err)
		} else {
			result.DocumentID = id
		}
	}

	if uc.events != nil {
		event := domain.SlotUpdated{Slot: req.Slot, InstanceID: uc.instanceID, NumChunks: result.NumChunks}
		if err := uc.events.PublishSlotUpdated(ctx, event); err != nil {
			uc.logger.Warn("slot_update_publish_failed", "slot", req.Slot, "error", err)
		}
	}

	uc.logger.Info("slot_ingested",
		"slot", result.Slot,
		"filename", req.Filename,
		"num_chunks", result.NumChunks,
		"num_text_chunks", result.NumText,
		"num_images", result.NumImages,
		"has_lexical", result.HasLexical,
	)
	return result, nil
}

func (uc *IngestUseCase) replace(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if err := domain.ValidateSlot(req.Slot); err != nil {
		return nil, err
	}
	if err := domain.ValidateChunks(req.Chunks, uc.dim); err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, len(req.Chunks))
	copy(chunks, req.Chunks)
	images := make(map[string]string, len(req.Images))
	for id, b64 := range req.Images {
		images[id] = b64
	}

	snap, err := uc.store.Replace(ctx, &domain.Corpus{
		Slot:      req.Slot,
		Dimension: uc.dim,
		Chunks:    chunks,
		Images:    images,
	})
	if err != nil {
		return nil, fmt.Errorf("replace slot corpus: %w", err)
	}

	corpus := snap.Corpus()
	_, hasLexical := snap.Lexical()
	numImages := corpus.ImageCount()
	return &domain.IngestResult{
		Slot:       req.Slot,
		NumChunks:  len(corpus.Chunks),
		NumText:    len(corpus.Chunks) - numImages,
		NumImages:  numImages,
		HasLexical: hasLexical,
	}, nil
}

// UploadDocumentUseCase stores uploaded PDFs and either enqueues them for a
// worker or processes them inline.
type UploadDocumentUseCase struct {
	storage   ports.ObjectStorage
	queue     ports.EventPublisher
	processor ports.DocumentProcessor
}

// NewUploadDocumentUseCase uses queue when it is non-nil, else processor.
func NewUploadDocumentUseCase(
	storage ports.ObjectStorage,
	queue ports.EventPublisher,
	processor ports.DocumentProcessor,
) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{
		storage:   storage,
		queue:     queue,
		processor: processor,
	}
}

func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	slot, filename string,
	body io.Reader,
) (*domain.UploadResult, error) {
	if err := domain.ValidateSlot(slot); err != nil {
		return nil, err
	}
	if uc.queue == nil && uc.processor == nil {
		return nil, fmt.Errorf("upload: no queue or processor configured")
	}

	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	job := domain.IngestJob{Slot: slot, Filename: filename, StorageKey: storageKey, EnqueuedAt: time.Now().UTC()}
	out := &domain.UploadResult{Slot: slot, Filename: filename, StorageKey: storageKey}

	if uc.queue != nil {
		if err := uc.queue.PublishIngestJob(ctx, job); err != nil {
			return nil, fmt.Errorf("publish ingestion job: %w", err)
		}
		out.Queued = true
		return out, nil
	}

	result, err := uc.processor.ProcessJob(ctx, job)
	if err != nil {
		return nil, err
	}
	out.Result = result
	return out, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.pdf"
	}
	return base
}

var (
	_ ports.CorpusIngestor   = (*IngestUseCase)(nil)
	_ ports.DocumentUploader = (*UploadDocumentUseCase)(nil)
)
