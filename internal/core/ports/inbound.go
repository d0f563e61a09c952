package ports

import (
	"context"
	"io"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

// CorpusIngestor is the inbound contract for replacing a slot's corpus.
type CorpusIngestor interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
}

// DocumentProcessor turns a stored PDF into chunks and ingests it.
type DocumentProcessor interface {
	ProcessJob(ctx context.Context, job domain.IngestJob) (*domain.IngestResult, error)
}

// QueryService is the inbound contract for retrieval and answering.
type QueryService interface {
	Query(ctx context.Context, req domain.RetrievalRequest) (*domain.QueryOutcome, error)
	Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error)
}

// SlotReader exposes the state of in-memory slots.
type SlotReader interface {
	Stats(slot string) domain.SlotStats
}

// EvaluationReader is the read model over the document registry and query log.
type EvaluationReader interface {
	ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error)
	RecentQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error)
	EvalSummary(ctx context.Context) (domain.EvalSummary, error)
}

// DocumentUploader stores an uploaded PDF and processes or enqueues it.
type DocumentUploader interface {
	Upload(ctx context.Context, slot, filename string, body io.Reader) (*domain.UploadResult, error)
}
