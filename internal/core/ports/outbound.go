package ports

import (
	"context"
	"io"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

// Embedder builds unit-normalized vectors for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator produces the answer from the retrieved evidence.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, evidence domain.Evidence) (string, error)
}

// DenseIndex is nearest-neighbour search over chunk embeddings.
type DenseIndex interface {
	Dimension() int
	Len() int
	SearchByVector(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error)
}

// LexicalIndex ranks text chunks by a BM25 score.
type LexicalIndex interface {
	Search(query string, k int) []domain.Chunk
}

// SlotSnapshot is an immutable, fully built view of one slot.
type SlotSnapshot interface {
	Corpus() *domain.Corpus
	Dense() DenseIndex
	Lexical() (LexicalIndex, bool)
}

// CorpusStore holds one active snapshot per slot.
type CorpusStore interface {
	Snapshot(slot string) (SlotSnapshot, bool)
	// Replace builds indexes for corpus off to the side, persists them and
	// swaps them in. Concurrent Replace calls on the same slot are serialized.
	Replace(ctx context.Context, corpus *domain.Corpus) (SlotSnapshot, error)
	// Reload restores a slot from its persisted snapshot.
	Reload(ctx context.Context, slot string) (bool, error)
}

// DocumentRegistry records ingested documents.
type DocumentRegistry interface {
	SaveDocument(ctx context.Context, rec domain.DocumentRecord) (int64, error)
	ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error)
	LatestDocument(ctx context.Context, slot string) (*domain.DocumentRecord, error)
}

// QueryLogStore persists query outcomes for evaluation.
type QueryLogStore interface {
	SaveQueryLog(ctx context.Context, entry domain.QueryLog) error
	RecentQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error)
	EvalSummary(ctx context.Context) (domain.EvalSummary, error)
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// EventPublisher broadcasts ingestion jobs and slot updates.
type EventPublisher interface {
	PublishIngestJob(ctx context.Context, job domain.IngestJob) error
	PublishSlotUpdated(ctx context.Context, event domain.SlotUpdated) error
}

// TextExtractor extracts per-page text from a stored document.
type TextExtractor interface {
	ExtractPages(ctx context.Context, storageKey string) ([]domain.PageText, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// QueryMetrics observes query outcomes.
type QueryMetrics interface {
	ObserveQuery(mode string, rejected, hallucination bool, seconds float64)
}

// IngestMetrics observes slot replacements.
type IngestMetrics interface {
	ObserveIngest(slot string, numChunks int, success bool, seconds float64)
}
