package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func TestEvaluationWithoutStoresIsEmpty(t *testing.T) {
	uc := NewEvaluationUseCase(nil, nil)
	ctx := context.Background()

	docs, err := uc.ListDocuments(ctx)
	if err != nil || docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil documents, got %v, %v", docs, err)
	}
	logs, err := uc.RecentQueryLogs(ctx, 10)
	if err != nil || logs == nil || len(logs) != 0 {
		t.Fatalf("expected empty non-nil logs, got %v, %v", logs, err)
	}
	summary, err := uc.EvalSummary(ctx)
	if err != nil || summary != (domain.EvalSummary{}) {
		t.Fatalf("expected zero summary, got %+v, %v", summary, err)
	}
}

func TestEvaluationDelegatesToStores(t *testing.T) {
	registry := &registryFake{records: []domain.DocumentRecord{{ID: 1, Slot: "standard", Filename: "bio.pdf"}}}
	logs := &queryLogFake{entries: []domain.QueryLog{{Query: "q"}}}
	uc := NewEvaluationUseCase(registry, logs)

	docs, err := uc.ListDocuments(context.Background())
	if err != nil || len(docs) != 1 || docs[0].Filename != "bio.pdf" {
		t.Fatalf("unexpected documents: %v, %v", docs, err)
	}
	entries, err := uc.RecentQueryLogs(context.Background(), 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("unexpected logs: %v, %v", entries, err)
	}
}
