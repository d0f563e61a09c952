package slot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/dense"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/lexical"
)

// Snapshot is one fully built, immutable slot state.
type Snapshot struct {
	corpus  *domain.Corpus
	dense   *dense.Index
	lexical *lexical.Index
}

func (s *Snapshot) Corpus() *domain.Corpus { return s.corpus }

func (s *Snapshot) Dense() ports.DenseIndex { return s.dense }

func (s *Snapshot) Lexical() (ports.LexicalIndex, bool) {
	if s.lexical == nil {
		return nil, false
	}
	return s.lexical, true
}

// Persister writes and restores slot snapshots.
type Persister interface {
	Save(ctx context.Context, slot string, idx *dense.Index, images map[string]string) error
	Load(ctx context.Context, slot string, dim int) (*dense.Index, map[string]string, bool)
	Slots(ctx context.Context) ([]string, error)
}

// Store holds the active snapshot of every slot. Readers take a snapshot
// reference and never block writers. Writers of one slot are serialized and
// build the replacement off to the side before swapping it in.
type Store struct {
	dim       int
	params    lexical.Params
	persister Persister
	logger    *slog.Logger

	mu      sync.RWMutex
	active  map[string]*Snapshot
	writers map[string]*sync.Mutex
}

// NewStore creates an empty store. A nil persister keeps slots in memory only.
func NewStore(dim int, params lexical.Params, persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dim:       dim,
		params:    params,
		persister: persister,
		logger:    logger,
		active:    make(map[string]*Snapshot),
		writers:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) Dimension() int { return s.dim }

func (s *Store) Snapshot(slot string) (ports.SlotSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.active[slot]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return snap, true
}

// Replace builds indexes for corpus, persists them and publishes the new
// snapshot. On any error the previous snapshot stays active.
func (s *Store) Replace(ctx context.Context, corpus *domain.Corpus) (ports.SlotSnapshot, error) {
	if corpus == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "replace slot", fmt.Errorf("nil corpus"))
	}
	if err := domain.ValidateSlot(corpus.Slot); err != nil {
		return nil, err
	}
	if corpus.Dimension != 0 && corpus.Dimension != s.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "replace slot", fmt.Errorf("corpus %d, store %d", corpus.Dimension, s.dim))
	}

	unlock := s.lockWriter(corpus.Slot)
	defer unlock()

	idx, err := dense.Build(ctx, corpus.Chunks, s.dim)
	if err != nil {
		return nil, fmt.Errorf("build dense index: %w", err)
	}
	images := make(map[string]string, len(corpus.Images))
	for id, b64 := range corpus.Images {
		images[id] = b64
	}

	if s.persister != nil {
		if err := s.persister.Save(ctx, corpus.Slot, idx, images); err != nil {
			return nil, fmt.Errorf("persist slot %s: %w", corpus.Slot, err)
		}
	}

	snap := s.assemble(corpus.Slot, idx, images)
	s.publish(corpus.Slot, snap)
	s.logger.Info("slot_replaced",
		"slot", corpus.Slot,
		"chunks", idx.Len(),
		"images", len(images),
		"has_lexical", snap.lexical != nil,
	)
	return snap, nil
}

// Reload replaces the in-memory slot with its persisted snapshot. It reports
// false when no usable snapshot exists; the active snapshot is then kept.
func (s *Store) Reload(ctx context.Context, slot string) (bool, error) {
	if err := domain.ValidateSlot(slot); err != nil {
		return false, err
	}
	if s.persister == nil {
		return false, nil
	}

	unlock := s.lockWriter(slot)
	defer unlock()

	idx, images, ok := s.persister.Load(ctx, slot, s.dim)
	if !ok {
		return false, nil
	}
	s.publish(slot, s.assemble(slot, idx, images))
	return true, nil
}

// LoadAll restores every persisted slot plus the listed ones and returns the
// names that were loaded, sorted.
func (s *Store) LoadAll(ctx context.Context, slots []string) []string {
	names := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		names[slot] = struct{}{}
	}
	if s.persister != nil {
		persisted, err := s.persister.Slots(ctx)
		if err != nil {
			s.logger.Warn("slot_scan_failed", "error", err)
		}
		for _, slot := range persisted {
			names[slot] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(names))
	for slot := range names {
		ordered = append(ordered, slot)
	}
	sort.Strings(ordered)

	loaded := make([]string, 0, len(ordered))
	for _, slot := range ordered {
		ok, err := s.Reload(ctx, slot)
		if err != nil {
			s.logger.Warn("slot_load_skipped", "slot", slot, "error", err)
			continue
		}
		if ok {
			loaded = append(loaded, slot)
		}
	}
	return loaded
}

func (s *Store) Stats(slot string) domain.SlotStats {
	stats := domain.SlotStats{Slot: slot, Dimension: s.dim}
	s.mu.RLock()
	snap, ok := s.active[slot]
	s.mu.RUnlock()
	if !ok {
		return stats
	}
	stats.Ready = true
	stats.NumChunks = len(snap.corpus.Chunks)
	stats.NumImages = snap.corpus.ImageCount()
	stats.NumText = stats.NumChunks - stats.NumImages
	stats.HasLexical = snap.lexical != nil
	return stats
}

// Slots lists slot names with an active snapshot, sorted.
func (s *Store) Slots() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.active))
	for name := range s.active {
		out = append(out, name)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Store) assemble(slot string, idx *dense.Index, images map[string]string) *Snapshot {
	chunks := idx.Chunks()
	return &Snapshot{
		corpus: &domain.Corpus{
			Slot:      slot,
			Dimension: s.dim,
			Chunks:    chunks,
			Images:    images,
		},
		dense:   idx,
		lexical: lexical.Build(chunks, s.params),
	}
}

func (s *Store) publish(slot string, snap *Snapshot) {
	s.mu.Lock()
	s.active[slot] = snap
	s.mu.Unlock()
}

func (s *Store) lockWriter(slot string) func() {
	s.mu.Lock()
	w, ok := s.writers[slot]
	if !ok {
		w = &sync.Mutex{}
		s.writers[slot] = w
	}
	s.mu.Unlock()
	w.Lock()
	return w.Unlock
}

var _ ports.CorpusStore = (*Store)(nil)
