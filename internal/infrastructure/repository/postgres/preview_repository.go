package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

// PreviewRepository keeps the staged review record: hot columns (owner,
// status, timestamps) are relational for querying, everything else rides in
// one JSONB payload.
type PreviewRepository struct {
	db *sql.DB
}

func NewPreviewRepository(db *sql.DB) *PreviewRepository {
	return &PreviewRepository{db: db}
}

func (r *PreviewRepository) Upsert(ctx context.Context, preview *domain.Preview) error {
	payload, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("marshal preview: %w", err)
	}

	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO previews (id, document_id, parse_result_id, owner_id, document_type, status, payload, reviewed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (document_id) DO UPDATE SET
	id = EXCLUDED.id,
	parse_result_id = EXCLUDED.parse_result_id,
	document_type = EXCLUDED.document_type,
	status = EXCLUDED.status,
	payload = EXCLUDED.payload,
	reviewed_at = EXCLUDED.reviewed_at,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at
`,
		preview.ID, preview.DocumentID, preview.ParseResultID, preview.OwnerID,
		string(preview.DocumentType), string(preview.Status), payload,
		preview.ReviewedAt, preview.CreatedAt, preview.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preview: %w", err)
	}
	return nil
}

func (r *PreviewRepository) GetByID(ctx context.Context, id string) (*domain.Preview, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *PreviewRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.Preview, error) {
	return r.getBy(ctx, "document_id = $1", documentID)
}

func (r *PreviewRepository) getBy(ctx context.Context, where, arg string) (*domain.Preview, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT payload, status, reviewed_at, updated_at FROM previews WHERE `+where, arg)

	preview, err := scanPreview(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get preview", fmt.Errorf("%s: %s", where, arg))
		}
		return nil, err
	}
	return preview, nil
}

func (r *PreviewRepository) Update(ctx context.Context, preview *domain.Preview) error {
	payload, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("marshal preview: %w", err)
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE previews
SET status = $2, payload = $3, reviewed_at = $4, updated_at = $5
WHERE id = $1
`, preview.ID, string(preview.Status), payload, preview.ReviewedAt, preview.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update preview: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update preview", fmt.Errorf("id %s", preview.ID))
	}
	return nil
}

func (r *PreviewRepository) ListReviewable(ctx context.Context, ownerID string) ([]domain.Preview, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT payload, status, reviewed_at, updated_at
FROM previews
WHERE owner_id = $1 AND status IN ($2, $3)
ORDER BY created_at
`, ownerID, string(domain.PreviewPendingReview), string(domain.PreviewNeedsClarification))
	if err != nil {
		return nil, fmt.Errorf("list reviewable previews: %w", err)
	}
	defer rows.Close()

	var previews []domain.Preview
	for rows.Next() {
		preview, err := scanPreview(rows.Scan)
		if err != nil {
			return nil, err
		}
		previews = append(previews, *preview)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate previews: %w", err)
	}
	return previews, nil
}

// scanPreview decodes the payload and overlays the columns the repository
// treats as source of truth for state transitions.
func scanPreview(scan func(dest ...any) error) (*domain.Preview, error) {
	var payload []byte
	var status string
	var reviewedAt sql.NullTime
	var updatedAt sql.NullTime

	if err := scan(&payload, &status, &reviewedAt, &updatedAt); err != nil {
		return nil, err
	}

	var preview domain.Preview
	if err := json.Unmarshal(payload, &preview); err != nil {
		return nil, fmt.Errorf("unmarshal preview payload: %w", err)
	}
	preview.Status = domain.PreviewStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		preview.ReviewedAt = &t
	} else {
		preview.ReviewedAt = nil
	}
	if updatedAt.Valid {
		preview.UpdatedAt = updatedAt.Time
	}
	return &preview, nil
}
