package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func TestIngestJobHandlerDecodesAndValidates(t *testing.T) {
	var got domain.IngestJob
	handle := ingestJobHandler(func(_ context.Context, job domain.IngestJob) error {
		got = job
		return nil
	})

	if err := handle(context.Background(), []byte(`{"slot":"bio","filename":"cells.pdf","storage_key":"k1"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got.Slot != "bio" || got.Filename != "cells.pdf" || got.StorageKey != "k1" {
		t.Fatalf("unexpected job: %+v", got)
	}

	for _, payload := range []string{`not json`, `{"slot":"../x","storage_key":"k"}`, `{"slot":"bio"}`} {
		if err := handle(context.Background(), []byte(payload)); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("payload %q: expected ErrInvalidInput, got %v", payload, err)
		}
	}
}

func TestSlotUpdateHandlerSkipsOwnInstance(t *testing.T) {
	var reloaded []string
	handle := slotUpdateHandler("api-1", func(_ context.Context, event domain.SlotUpdated) error {
		reloaded = append(reloaded, event.Slot)
		return nil
	})

	if err := handle(context.Background(), []byte(`{"slot":"bio","instance_id":"api-1","num_chunks":3}`)); err != nil {
		t.Fatalf("own event: %v", err)
	}
	if err := handle(context.Background(), []byte(`{"slot":"chem","instance_id":"worker-7","num_chunks":5}`)); err != nil {
		t.Fatalf("foreign event: %v", err)
	}
	if len(reloaded) != 1 || reloaded[0] != "chem" {
		t.Fatalf("expected only the foreign slot to reload, got %v", reloaded)
	}
}

func TestSlotUpdateHandlerPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	handle := slotUpdateHandler("api-1", func(context.Context, domain.SlotUpdated) error { return boom })
	if err := handle(context.Background(), []byte(`{"slot":"bio","instance_id":"other"}`)); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestClassifyPublishError(t *testing.T) {
	if c := classifyPublishError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("canceled must be neither retryable nor recorded: %+v", c)
	}
	if c := classifyPublishError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable {
		t.Fatalf("closed connection must be retryable: %+v", c)
	}
	if c := classifyPublishError(nats.ErrMaxPayload); c.Retryable || c.RecordFailure {
		t.Fatalf("oversized message must not trip the breaker: %+v", c)
	}
	if c := classifyPublishError(nats.ErrConnectionDraining); c.Retryable || c.RecordFailure {
		t.Fatalf("draining connection must not be retried: %+v", c)
	}
	if c := classifyPublishError(nats.ErrBadSubject); c.Retryable || !c.RecordFailure {
		t.Fatalf("bad subject must be recorded but not retried: %+v", c)
	}
}

func TestQueueErrorKinds(t *testing.T) {
	op := publishOp("rag.slots.updated")
	err := queueError(op, nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("timeout must be temporary, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "publish rag.slots.updated") {
		t.Fatalf("expected the subject in the error, got %v", err)
	}
	if err := queueError(op, gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open circuit must be temporary, got %v", err)
	}
	if err := queueError(op, nats.ErrMaxPayload); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("oversized message must be invalid input, got %v", err)
	}
	if err := queueError(subscribeOp("rag.documents.ingest"), nats.ErrBadSubject); domain.IsKind(err, domain.ErrTemporary) || !strings.HasPrefix(err.Error(), "subscribe rag.documents.ingest") {
		t.Fatalf("bad subject must be a plain subscribe error, got %v", err)
	}
	if queueError(op, nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
