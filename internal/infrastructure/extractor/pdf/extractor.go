package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

var pdfMagic = []byte("%PDF-")

// Extractor reads stored uploads and returns their text page by page.
// Plain UTF-8 uploads are returned as a single page 0.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) ExtractPages(ctx context.Context, storageKey string) ([]domain.PageText, error) {
	reader, err := e.storage.Open(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	if !bytes.HasPrefix(raw, pdfMagic) {
		if !utf8.Valid(raw) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "extract pages", fmt.Errorf("unsupported binary format: %s", storageKey))
		}
		return []domain.PageText{{Page: 0, Text: strings.TrimSpace(string(raw))}}, nil
	}
	return extractPDF(ctx, raw)
}

func extractPDF(ctx context.Context, raw []byte) ([]domain.PageText, error) {
	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}

	numPages := doc.NumPage()
	pages := make([]domain.PageText, 0, numPages)
	for n := 1; n <= numPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "extract pdf page", fmt.Errorf("page %d: %w", n, err))
		}
		pages = append(pages, domain.PageText{Page: n - 1, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}
