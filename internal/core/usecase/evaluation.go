package usecase

import (
	"context"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// EvaluationUseCase reads the document registry and the query log. Either
// store may be nil when no database is configured; reads then return empty
// results.
type EvaluationUseCase struct {
	registry ports.DocumentRegistry
	logs     ports.QueryLogStore
}

func NewEvaluationUseCase(registry ports.DocumentRegistry, logs ports.QueryLogStore) *EvaluationUseCase {
	return &EvaluationUseCase{registry: registry, logs: logs}
}

var _ ports.EvaluationReader = (*EvaluationUseCase)(nil)

func (uc *EvaluationUseCase) ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error) {
	if uc.registry == nil {
		return []domain.DocumentRecord{}, nil
	}
	return uc.registry.ListDocuments(ctx)
}

func (uc *EvaluationUseCase) RecentQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error) {
	if uc.logs == nil {
		return []domain.QueryLog{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return uc.logs.RecentQueryLogs(ctx, limit)
}

func (uc *EvaluationUseCase) EvalSummary(ctx context.Context) (domain.EvalSummary, error) {
	if uc.logs == nil {
		return domain.EvalSummary{}, nil
	}
	return uc.logs.EvalSummary(ctx)
}
