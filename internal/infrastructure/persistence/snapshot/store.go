package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/index/dense"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/storage/localfs"
)

const ImagesFile = "images.json"

// Store persists one directory per slot: the dense index file, its docstore
// and the image map. The lexical index is never written; it is rebuilt from
// the docstore text on load.
type Store struct {
	fs     *localfs.Storage
	logger *slog.Logger
}

func New(fs *localfs.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger}
}

// Save replaces the slot directory atomically. Readers of the old directory
// never observe a partial write.
func (s *Store) Save(ctx context.Context, slot string, idx *dense.Index, images map[string]string) error {
	if err := domain.ValidateSlot(slot); err != nil {
		return err
	}
	if images == nil {
		images = map[string]string{}
	}
	return s.fs.ReplaceDir(ctx, slot, func(dir string) error {
		if err := idx.Save(dir); err != nil {
			return err
		}
		raw, err := json.Marshal(images)
		if err != nil {
			return fmt.Errorf("encode image map: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, ImagesFile), raw, 0o644); err != nil {
			return fmt.Errorf("write image map: %w", err)
		}
		return nil
	})
}

// Slots lists the slot directories present on disk. Whether each one loads is
// decided by Load.
func (s *Store) Slots(ctx context.Context) ([]string, error) {
	dirs, err := s.fs.ListDirs(ctx)
	if err != nil {
		return nil, err
	}
	slots := dirs[:0]
	for _, name := range dirs {
		if domain.ValidateSlot(name) == nil {
			slots = append(slots, name)
		}
	}
	return slots, nil
}

// Load restores a slot. A missing, partial, corrupt or incompatible snapshot
// reports ok=false; the cause is logged and never returned.
func (s *Store) Load(ctx context.Context, slot string, dim int) (*dense.Index, map[string]string, bool) {
	dir, err := s.fs.Path(slot)
	if err != nil {
		s.logger.Warn("snapshot_load_failed", "slot", slot, "error", err)
		return nil, nil, false
	}
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("snapshot_load_failed", "slot", slot, "error", err)
		}
		return nil, nil, false
	}

	idx, err := dense.Load(ctx, dir, dim)
	if err != nil {
		s.logger.Warn("snapshot_load_failed", "slot", slot, "error", err)
		return nil, nil, false
	}

	raw, err := os.ReadFile(filepath.Join(dir, ImagesFile))
	if err != nil {
		s.logger.Warn("snapshot_load_failed", "slot", slot, "error", err)
		return nil, nil, false
	}
	images := map[string]string{}
	if err := json.Unmarshal(raw, &images); err != nil {
		s.logger.Warn("snapshot_load_failed", "slot", slot, "error", fmt.Errorf("decode image map: %w", err))
		return nil, nil, false
	}

	s.logger.Info("snapshot_loaded", "slot", slot, "chunks", idx.Len(), "images", len(images))
	return idx, images, true
}
