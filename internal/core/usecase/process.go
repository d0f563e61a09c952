package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// ProcessDocumentUseCase turns a stored PDF into text chunks and ingests
// them as the slot's new corpus.
type ProcessDocumentUseCase struct {
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	ingestor  ports.CorpusIngestor
	logger    *slog.Logger
}

func NewProcessDocumentUseCase(
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	ingestor ports.CorpusIngestor,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		ingestor:  ingestor,
		logger:    logger,
	}
}

// ProcessJob ingests the job's document. The stored upload is removed
// afterwards whether or not ingestion succeeded.
func (uc *ProcessDocumentUseCase) ProcessJob(ctx context.Context, job domain.IngestJob) (*domain.IngestResult, error) {
	defer uc.cleanup(job.StorageKey)

	if err := domain.ValidateSlot(job.Slot); err != nil {
		return nil, err
	}

	pages, err := uc.extractPages(ctx, job.StorageKey)
	if err != nil {
		return nil, err
	}

	chunks := uc.chunk(pages)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return nil, err
	}

	result, err := uc.ingestor.Ingest(ctx, domain.IngestRequest{
		Slot:     job.Slot,
		Filename: job.Filename,
		Chunks:   chunks,
		Images:   map[string]string{},
	})
	if err != nil {
		return nil, fmt.Errorf("ingest chunks: %w", err)
	}
	return result, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, storageKey string) ([]domain.PageText, error) {
	pages, err := uc.extractor.ExtractPages(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return pages, nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
}

// chunk splits every page on its own so chunks never span pages. Ids are
// p{page}-t{seq} with seq restarting on each page.
func (uc *ProcessDocumentUseCase) chunk(pages []domain.PageText) []domain.Chunk {
	var out []domain.Chunk
	for _, page := range pages {
		for seq, piece := range uc.chunker.Split(page.Text) {
			out = append(out, domain.Chunk{
				ID:      fmt.Sprintf("p%d-t%d", page.Page, seq),
				Kind:    domain.ChunkText,
				Page:    page.Page,
				Content: piece,
			})
		}
	}
	return out
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

func (uc *ProcessDocumentUseCase) cleanup(storageKey string) {
	if uc.storage == nil || storageKey == "" {
		return
	}
	if err := uc.storage.Remove(context.Background(), storageKey); err != nil {
		uc.logger.Warn("upload_cleanup_failed", "storage_key", storageKey, "error", err)
	}
}

var _ ports.DocumentProcessor = (*ProcessDocumentUseCase)(nil)
