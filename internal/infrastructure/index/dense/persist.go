package dense

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/philippgille/chromem-go"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

const (
	IndexFile    = "index.chromem.gz"
	DocstoreFile = "docstore.gob"

	docstoreVersion = 1
)

// docstore is the id -> chunk mapping persisted next to the vector file.
// Embeddings live only in the chromem export.
type docstore struct {
	Version   int
	Dimension int
	Chunks    []storedChunk
}

type storedChunk struct {
	ID      string
	Kind    string
	Page    int
	Content string
}

// Save writes the vector file and the docstore into dir, which must exist.
func (idx *Index) Save(dir string) error {
	//nolint:staticcheck // Export keeps the on-disk format stable across chromem releases.
	if err := idx.db.Export(filepath.Join(dir, IndexFile), true, ""); err != nil {
		return fmt.Errorf("export dense index: %w", err)
	}

	ds := docstore{Version: docstoreVersion, Dimension: idx.dim, Chunks: make([]storedChunk, 0, len(idx.order))}
	for _, id := range idx.order {
		ch := idx.chunks[id]
		ds.Chunks = append(ds.Chunks, storedChunk{ID: ch.ID, Kind: string(ch.Kind), Page: ch.Page, Content: ch.Content})
	}

	f, err := os.Create(filepath.Join(dir, DocstoreFile))
	if err != nil {
		return fmt.Errorf("create docstore: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(ds); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode docstore: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync docstore: %w", err)
	}
	return f.Close()
}

// Load restores an index saved by Save. Any missing file, version or
// dimension mismatch, or disagreement between the two files is an error.
func Load(ctx context.Context, dir string, dim int) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, DocstoreFile))
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}
	defer f.Close()

	var ds docstore
	if err := gob.NewDecoder(f).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode docstore: %w", err)
	}
	if ds.Version != docstoreVersion {
		return nil, fmt.Errorf("docstore version %d, want %d", ds.Version, docstoreVersion)
	}
	if ds.Dimension != dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "load dense index", fmt.Errorf("stored %d, configured %d", ds.Dimension, dim))
	}

	db := chromem.NewDB()
	//nolint:staticcheck // Import pairs with Export in Save.
	if err := db.Import(filepath.Join(dir, IndexFile), ""); err != nil {
		return nil, fmt.Errorf("import dense index: %w", err)
	}
	col := db.GetCollection(collectionName, precomputedOnly)
	if col == nil {
		return nil, errors.New("dense index file has no chunk collection")
	}
	if col.Count() != len(ds.Chunks) {
		return nil, fmt.Errorf("dense index holds %d vectors, docstore %d chunks", col.Count(), len(ds.Chunks))
	}

	idx := &Index{
		dim:    dim,
		db:     db,
		col:    col,
		chunks: make(map[string]domain.Chunk, len(ds.Chunks)),
		order:  make([]string, 0, len(ds.Chunks)),
	}
	for _, sc := range ds.Chunks {
		doc, err := col.GetByID(ctx, sc.ID)
		if err != nil {
			return nil, fmt.Errorf("vector for chunk %q: %w", sc.ID, err)
		}
		if len(doc.Embedding) != dim {
			return nil, domain.WrapError(domain.ErrDimensionMismatch, "load dense index", fmt.Errorf("chunk %q has %d dims", sc.ID, len(doc.Embedding)))
		}
		ch := domain.Chunk{ID: sc.ID, Kind: domain.ChunkKind(sc.Kind), Page: sc.Page, Content: sc.Content, Embedding: doc.Embedding}
		if !ch.Kind.Valid() {
			return nil, fmt.Errorf("chunk %q has unknown kind %q", sc.ID, sc.Kind)
		}
		idx.chunks[ch.ID] = ch
		idx.order = append(idx.order, ch.ID)
	}
	return idx, nil
}
