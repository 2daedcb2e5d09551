package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

type ParseResultRepository struct {
	db *sql.DB
}

func NewParseResultRepository(db *sql.DB) *ParseResultRepository {
	return &ParseResultRepository{db: db}
}

// Upsert replaces any earlier result for the same document, so a re-parse
// leaves exactly one row.
func (r *ParseResultRepository) Upsert(ctx context.Context, result *domain.ParseResult) error {
	dataJSON, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Errorf("marshal extraction data: %w", err)
	}
	confJSON, err := json.Marshal(result.Confidence)
	if err != nil {
		return fmt.Errorf("marshal confidence: %w", err)
	}

	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO parse_results (id, document_id, raw, data, confidence, language, model_version, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (document_id) DO UPDATE SET
	id = EXCLUDED.id,
	raw = EXCLUDED.raw,
	data = EXCLUDED.data,
	confidence = EXCLUDED.confidence,
	language = EXCLUDED.language,
	model_version = EXCLUDED.model_version,
	created_at = EXCLUDED.created_at
`,
		result.ID, result.DocumentID, []byte(result.Raw), dataJSON, confJSON,
		result.Language, result.ModelVersion, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert parse result: %w", err)
	}
	return nil
}

func (r *ParseResultRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.ParseResult, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT id, document_id, raw, data, confidence, language, model_version, created_at
FROM parse_results
WHERE document_id = $1
`, documentID)

	var result domain.ParseResult
	var raw, dataRaw, confRaw []byte

	err := row.Scan(&result.ID, &result.DocumentID, &raw, &dataRaw, &confRaw,
		&result.Language, &result.ModelVersion, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get parse result", fmt.Errorf("document %s", documentID))
		}
		return nil, fmt.Errorf("scan parse result: %w", err)
	}

	result.Raw = json.RawMessage(raw)
	if err := json.Unmarshal(dataRaw, &result.Data); err != nil {
		return nil, fmt.Errorf("unmarshal extraction data: %w", err)
	}
	if err := json.Unmarshal(confRaw, &result.Confidence); err != nil {
		return nil, fmt.Errorf("unmarshal confidence: %w", err)
	}
	return &result, nil
}
