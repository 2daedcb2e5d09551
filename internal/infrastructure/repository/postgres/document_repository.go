package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, filename, mime_type, storage_path, document_type, status, error_message,
	uploaded_at, processed_at, processing_seconds, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.OwnerID, doc.Filename, doc.MimeType, doc.StoragePath, string(doc.Type),
		string(doc.Status), doc.Error, doc.UploadedAt, doc.ProcessedAt, doc.ProcessingSeconds, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT id, owner_id, filename, mime_type, storage_path, document_type, status, error_message,
	uploaded_at, processed_at, processing_seconds, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var docType, status string

	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &docType, &status,
		&doc.Error, &doc.UploadedAt, &doc.ProcessedAt, &doc.ProcessingSeconds, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Type = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update document status", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *DocumentRepository) SetParsed(ctx context.Context, id string, docType domain.DocumentType, processedAt time.Time, seconds float64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE documents
SET status = $2, document_type = $3, processed_at = $4, processing_seconds = $5, error_message = '', updated_at = $6
WHERE id = $1
`, id, string(domain.StatusParsed), string(docType), processedAt, seconds, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set document parsed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "set document parsed", fmt.Errorf("id %s", id))
	}
	return nil
}
