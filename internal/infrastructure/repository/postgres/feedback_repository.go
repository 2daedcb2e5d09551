package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, record *domain.FeedbackRecord) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO feedback_records (
	id, user_id, document_id, preview_id, feedback_type, field_path,
	original_data, corrected_data, edit_magnitude, user_rating,
	was_used_for_training, model_version_used, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		record.ID, record.UserID, record.DocumentID, record.PreviewID, string(record.Type),
		record.FieldPath, nullableJSON(record.OriginalData), nullableJSON(record.CorrectedData),
		string(record.Magnitude), string(record.Rating), record.WasUsedForTraining,
		record.ModelVersionUsed, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback record: %w", err)
	}
	return nil
}

// Training-eligible feedback is an unused, user-rated correction: edits and
// field fixes carry the signal, implicit positives only calibrate ratings,
// and an unrated correction has not been vetted yet.
const trainingEligibleWhere = `
was_used_for_training = FALSE
AND feedback_type IN ('manual_edit', 'field_correction')
AND user_rating <> ''
`

func (r *FeedbackRepository) GetByID(ctx context.Context, id string) (*domain.FeedbackRecord, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, selectFeedback+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get feedback record: %w", err)
	}
	records, err := collectFeedback(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "get feedback record",
			fmt.Errorf("feedback record %s", id))
	}
	return &records[0], nil
}

func (r *FeedbackRepository) UpdateRating(ctx context.Context, id string, rating domain.UserRating) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE feedback_records
SET user_rating = $2
WHERE id = $1
`, id, string(rating))
	if err != nil {
		return fmt.Errorf("update feedback rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feedback rating: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update feedback rating",
			fmt.Errorf("feedback record %s", id))
	}
	return nil
}

func (r *FeedbackRepository) CountEligibleForTraining(ctx context.Context) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_records WHERE `+trainingEligibleWhere).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count eligible feedback: %w", err)
	}
	return count, nil
}

func (r *FeedbackRepository) ListEligibleForTraining(ctx context.Context) ([]domain.FeedbackRecord, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		selectFeedback+` WHERE `+trainingEligibleWhere+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list eligible feedback: %w", err)
	}
	return collectFeedback(rows)
}

func (r *FeedbackRepository) ListUnusedRated(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		selectFeedback+`
WHERE was_used_for_training = FALSE AND user_rating <> ''
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rated feedback: %w", err)
	}
	return collectFeedback(rows)
}

func (r *FeedbackRepository) MarkUsedForTraining(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE feedback_records
SET was_used_for_training = TRUE
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return fmt.Errorf("mark feedback used: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) Stats(ctx context.Context) (domain.FeedbackStats, error) {
	stats := domain.FeedbackStats{
		ByType:   map[domain.FeedbackType]int{},
		ByRating: map[domain.UserRating]int{},
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT feedback_type, user_rating, was_used_for_training, COUNT(*)
FROM feedback_records
GROUP BY feedback_type, user_rating, was_used_for_training
`)
	if err != nil {
		return stats, fmt.Errorf("aggregate feedback stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var feedbackType, rating string
		var used bool
		var count int
		if err := rows.Scan(&feedbackType, &rating, &used, &count); err != nil {
			return stats, fmt.Errorf("scan feedback stats: %w", err)
		}
		stats.Total += count
		if !used {
			stats.Unused += count
		}
		stats.ByType[domain.FeedbackType(feedbackType)] += count
		if rating != "" {
			stats.ByRating[domain.UserRating(rating)] += count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate feedback stats: %w", err)
	}
	return stats, nil
}

const selectFeedback = `
SELECT id, user_id, document_id, preview_id, feedback_type, field_path,
	original_data, corrected_data, edit_magnitude, user_rating,
	was_used_for_training, model_version_used, created_at
FROM feedback_records`

func collectFeedback(rows *sql.Rows) ([]domain.FeedbackRecord, error) {
	defer rows.Close()

	var records []domain.FeedbackRecord
	for rows.Next() {
		var record domain.FeedbackRecord
		var feedbackType, magnitude, rating string
		var original, corrected []byte

		err := rows.Scan(
			&record.ID, &record.UserID, &record.DocumentID, &record.PreviewID, &feedbackType,
			&record.FieldPath, &original, &corrected, &magnitude, &rating,
			&record.WasUsedForTraining, &record.ModelVersionUsed, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feedback record: %w", err)
		}
		record.Type = domain.FeedbackType(feedbackType)
		record.Magnitude = domain.EditMagnitude(magnitude)
		record.Rating = domain.UserRating(rating)
		record.OriginalData = original
		record.CorrectedData = corrected
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback records: %w", err)
	}
	return records, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
