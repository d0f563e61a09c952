package slot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/dense"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/lexical"
)

type fakePersister struct {
	mu      sync.Mutex
	saveErr error
	saved   map[string]*dense.Index
	images  map[string]map[string]string
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: map[string]*dense.Index{}, images: map[string]map[string]string{}}
}

func (p *fakePersister) Save(_ context.Context, slot string, idx *dense.Index, images map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved[slot] = idx
	p.images[slot] = images
	return nil
}

func (p *fakePersister) Load(_ context.Context, slot string, _ int) (*dense.Index, map[string]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.saved[slot]
	return idx, p.images[slot], ok
}

func (p *fakePersister) Slots(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.saved))
	for slot := range p.saved {
		out = append(out, slot)
	}
	return out, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func corpus(slot string, texts ...string) *domain.Corpus {
	c := &domain.Corpus{Slot: slot, Dimension: 2, Images: map[string]string{}}
	for i, text := range texts {
		c.Chunks = append(c.Chunks, domain.Chunk{
			ID:        fmt.Sprintf("p0-t%d", i),
			Kind:      domain.ChunkText,
			Content:   text,
			Embedding: domain.Normalize([]float32{float32(i + 1), 1}),
		})
	}
	return c
}

func TestReplacePublishesSnapshot(t *testing.T) {
	store := NewStore(2, lexical.DefaultParams(), newFakePersister(), quietLogger())
	if _, ok := store.Snapshot("standard"); ok {
		t.Fatalf("expected no snapshot before ingestion")
	}

	if _, err := store.Replace(context.Background(), corpus("standard", "alpha", "beta")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	snap, ok := store.Snapshot("standard")
	if !ok {
		t.Fatalf("expected snapshot after Replace")
	}
	if snap.Dense().Len() != 2 {
		t.Fatalf("expected 2 vectors, got %d", snap.Dense().Len())
	}
	if _, ok := snap.Lexical(); !ok {
		t.Fatalf("expected lexical index for text corpus")
	}

	stats := store.Stats("standard")
	if !stats.Ready || stats.NumChunks != 2 || stats.NumText != 2 || !stats.HasLexical {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestReplaceImageOnlyCorpusHasNoLexical(t *testing.T) {
	store := NewStore(2, lexical.DefaultParams(), nil, quietLogger())
	c := &domain.Corpus{
		Slot:   "standard",
		Chunks: []domain.Chunk{{ID: "p0-i0", Kind: domain.ChunkImage, Content: "p0-i0", Embedding: domain.Normalize([]float32{1, 0})}},
		Images: map[string]string{"p0-i0": "aGk="},
	}
	snap, err := store.Replace(context.Background(), c)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, ok := snap.Lexical(); ok {
		t.Fatalf("image-only corpus must not have a lexical index")
	}
}

func TestReplaceKeepsPreviousSnapshotOnPersistFailure(t *testing.T) {
	persister := newFakePersister()
	store := NewStore(2, lexical.DefaultParams(), persister, quietLogger())
	if _, err := store.Replace(context.Background(), corpus("standard", "alpha")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	persister.saveErr = errors.New("disk full")
	if _, err := store.Replace(context.Background(), corpus("standard", "alpha", "beta", "gamma")); err == nil {
		t.Fatalf("expected persist error")
	}
	snap, _ := store.Snapshot("standard")
	if snap.Dense().Len() != 1 {
		t.Fatalf("expected previous snapshot to stay active, got %d chunks", snap.Dense().Len())
	}
}

func TestReplaceRejectsDimensionMismatch(t *testing.T) {
	store := NewStore(3, lexical.DefaultParams(), nil, quietLogger())
	_, err := store.Replace(context.Background(), corpus("standard", "alpha"))
	if !domain.IsKind(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, ok := store.Snapshot("standard"); ok {
		t.Fatalf("failed replace must not publish")
	}
}

func TestReloadFromPersister(t *testing.T) {
	persister := newFakePersister()
	writer := NewStore(2, lexical.DefaultParams(), persister, quietLogger())
	if _, err := writer.Replace(context.Background(), corpus("standard", "alpha", "beta")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	replica := NewStore(2, lexical.DefaultParams(), persister, quietLogger())
	loaded := replica.LoadAll(context.Background(), []string{"standard", "agentic"})
	if len(loaded) != 1 || loaded[0] != "standard" {
		t.Fatalf("expected only standard to load, got %v", loaded)
	}
	snap, ok := replica.Snapshot("standard")
	if !ok {
		t.Fatalf("expected replica snapshot")
	}
	if _, ok := snap.Lexical(); !ok {
		t.Fatalf("expected lexical index rebuilt on reload")
	}
}

func TestLoadAllRestoresSlotsOutsideTheConfiguredList(t *testing.T) {
	persister := newFakePersister()
	writer := NewStore(2, lexical.DefaultParams(), persister, quietLogger())
	for _, name := range []string{"manuals", "standard"} {
		if _, err := writer.Replace(context.Background(), corpus(name, "alpha")); err != nil {
			t.Fatalf("Replace %s: %v", name, err)
		}
	}

	restarted := NewStore(2, lexical.DefaultParams(), persister, quietLogger())
	loaded := restarted.LoadAll(context.Background(), []string{"standard"})
	if len(loaded) != 2 || loaded[0] != "manuals" || loaded[1] != "standard" {
		t.Fatalf("expected manuals and standard, got %v", loaded)
	}
	if !restarted.Stats("manuals").Ready {
		t.Fatalf("manuals must be ready after restart")
	}
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := NewStore(2, lexical.DefaultParams(), nil, quietLogger())
	ctx := context.Background()
	if _, err := store.Replace(ctx, corpus("standard", "a")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				texts := make([]string, w+i+1)
				for j := range texts {
					texts[j] = fmt.Sprintf("word%d", j)
				}
				if _, err := store.Replace(ctx, corpus("standard", texts...)); err != nil {
					t.Errorf("Replace: %v", err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				snap, ok := store.Snapshot("standard")
				if !ok {
					t.Errorf("snapshot disappeared")
					return
				}
				if snap.Dense().Len() != len(snap.Corpus().Chunks) {
					t.Errorf("dense index and corpus disagree: %d vs %d", snap.Dense().Len(), len(snap.Corpus().Chunks))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestReplaceRejectsBadSlot(t *testing.T) {
	store := NewStore(2, lexical.DefaultParams(), nil, quietLogger())
	if _, err := store.Replace(context.Background(), corpus("../x", "a")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
