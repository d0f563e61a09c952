package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

// Storage keeps flat files and whole directories under one base path.
// Writes go to a temporary sibling first and are renamed into place.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) BasePath() string { return s.basePath }

// Path resolves key inside the base path. Keys are single path elements.
func (s *Storage) Path(key string) (string, error) {
	if !ValidKey(key) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve storage key", fmt.Errorf("bad key %q", key))
	}
	return filepath.Join(s.basePath, key), nil
}

// ValidKey reports whether key names a direct child of the base path.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && filepath.Base(key) == key
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.basePath, ".tmp-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Remove deletes key. A missing key is not an error.
func (s *Storage) Remove(_ context.Context, key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ListDirs returns the names of the directories directly under the base
// path, sorted. Staging and retired directories are hidden.
func (s *Storage) ListDirs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("list storage dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidKey(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ReplaceDir fills a fresh temporary directory with fill and then swaps it in
// as key. If fill fails the existing directory is left untouched.
func (s *Storage) ReplaceDir(_ context.Context, key string, fill func(dir string) error) error {
	target, err := s.Path(key)
	if err != nil {
		return err
	}
	staging := filepath.Join(s.basePath, ".tmp-"+key+"-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := fill(staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	var previous string
	if _, err := os.Stat(target); err == nil {
		previous = filepath.Join(s.basePath, ".old-"+key+"-"+uuid.NewString())
		if err := os.Rename(target, previous); err != nil {
			_ = os.RemoveAll(staging)
			return fmt.Errorf("move previous dir aside: %w", err)
		}
	}
	if err := os.Rename(staging, target); err != nil {
		if previous != "" {
			_ = os.Rename(previous, target)
		}
		_ = os.RemoveAll(staging)
		return fmt.Errorf("swap in dir: %w", err)
	}
	if previous != "" {
		_ = os.RemoveAll(previous)
	}
	return nil
}
