package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rag_documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDocumentReturnsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO rag_documents").
		WithArgs("bio", "cells.pdf", at, 12, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := repo.SaveDocument(context.Background(), domain.DocumentRecord{
		Slot: "bio", Filename: "cells.pdf", UploadedAt: at, NumChunks: 12, NumImages: 2,
	})
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDocumentsNewestFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, slot, filename, uploaded_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slot", "filename", "uploaded_at", "num_chunks", "num_images"}).
			AddRow(int64(2), "bio", "b.pdf", now, 4, 0).
			AddRow(int64(1), "bio", "a.pdf", now.Add(-time.Hour), 3, 1))

	docs, err := repo.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != 2 || docs[1].Filename != "a.pdf" || docs[1].NumImages != 1 {
		t.Fatalf("unexpected documents: %+v", docs)
	}
}

func TestLatestDocumentReturnsDomainNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT id, slot, filename, uploaded_at").
		WithArgs("empty").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LatestDocument(context.Background(), "empty")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestDocumentScansRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, slot, filename, uploaded_at").
		WithArgs("bio").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slot", "filename", "uploaded_at", "num_chunks", "num_images"}).
			AddRow(int64(9), "bio", "c.pdf", now, 5, 0))

	doc, err := repo.LatestDocument(context.Background(), "bio")
	if err != nil {
		t.Fatalf("LatestDocument: %v", err)
	}
	if doc.ID != 9 || doc.Filename != "c.pdf" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}
