package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

type ModelVersionRepository struct {
	db *sql.DB
}

func NewModelVersionRepository(db *sql.DB) *ModelVersionRepository {
	return &ModelVersionRepository{db: db}
}

const selectModelVersion = `
SELECT id, version, base_model, status, training_file_id, training_job_id,
	fine_tuned_model, training_error, accuracy_before, accuracy_after,
	metrics_estimated, improvements, is_active, rollback_reason,
	created_at, activated_at, deactivated_at, reactivated_at
FROM model_versions`

func (r *ModelVersionRepository) Create(ctx context.Context, version *domain.ModelVersion) error {
	improvements, err := json.Marshal(version.Improvements)
	if err != nil {
		return fmt.Errorf("marshal improvements: %w", err)
	}

	_, err = conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO model_versions (
	id, version, base_model, status, training_file_id, training_job_id,
	fine_tuned_model, training_error, accuracy_before, accuracy_after,
	metrics_estimated, improvements, is_active, rollback_reason,
	created_at, activated_at, deactivated_at, reactivated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`,
		version.ID, version.Version, version.BaseModel, string(version.Status),
		version.TrainingFileID, version.TrainingJobID, version.FineTunedModel, version.TrainingError,
		version.AccuracyBefore, version.AccuracyAfter, version.MetricsEstimated, improvements,
		version.IsActive, version.RollbackReason,
		version.CreatedAt, version.ActivatedAt, version.DeactivatedAt, version.ReactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert model version: %w", err)
	}
	return nil
}

func (r *ModelVersionRepository) GetByID(ctx context.Context, id string) (*domain.ModelVersion, error) {
	return r.getOne(ctx, selectModelVersion+` WHERE id = $1`, id)
}

// GetByIDForUpdate takes a row lock; callers must hold an ambient transaction.
func (r *ModelVersionRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.ModelVersion, error) {
	return r.getOne(ctx, selectModelVersion+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *ModelVersionRepository) GetActive(ctx context.Context) (*domain.ModelVersion, error) {
	return r.getOne(ctx, selectModelVersion+` WHERE is_active`)
}

// GetActiveForUpdate locks the active row so concurrent activations serialize.
func (r *ModelVersionRepository) GetActiveForUpdate(ctx context.Context) (*domain.ModelVersion, error) {
	return r.getOne(ctx, selectModelVersion+` WHERE is_active FOR UPDATE`)
}

func (r *ModelVersionRepository) getOne(ctx context.Context, query string, args ...any) (*domain.ModelVersion, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, query, args...)
	version, err := scanModelVersion(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get model version", errors.New("no matching row"))
		}
		return nil, err
	}
	return version, nil
}

func (r *ModelVersionRepository) List(ctx context.Context) ([]domain.ModelVersion, error) {
	return r.list(ctx, selectModelVersion+` ORDER BY created_at DESC`)
}

func (r *ModelVersionRepository) ListByStatus(ctx context.Context, status domain.ModelVersionStatus) ([]domain.ModelVersion, error) {
	return r.list(ctx, selectModelVersion+` WHERE status = $1 ORDER BY created_at`, string(status))
}

func (r *ModelVersionRepository) list(ctx context.Context, query string, args ...any) ([]domain.ModelVersion, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.ModelVersion
	for rows.Next() {
		version, err := scanModelVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model versions: %w", err)
	}
	return versions, nil
}

func (r *ModelVersionRepository) Update(ctx context.Context, version *domain.ModelVersion) error {
	improvements, err := json.Marshal(version.Improvements)
	if err != nil {
		return fmt.Errorf("marshal improvements: %w", err)
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE model_versions
SET status = $2, training_file_id = $3, training_job_id = $4, fine_tuned_model = $5,
	training_error = $6, accuracy_before = $7, accuracy_after = $8, metrics_estimated = $9,
	improvements = $10, is_active = $11, rollback_reason = $12,
	activated_at = $13, deactivated_at = $14, reactivated_at = $15
WHERE id = $1
`,
		version.ID, string(version.Status), version.TrainingFileID, version.TrainingJobID,
		version.FineTunedModel, version.TrainingError, version.AccuracyBefore, version.AccuracyAfter,
		version.MetricsEstimated, improvements, version.IsActive, version.RollbackReason,
		version.ActivatedAt, version.DeactivatedAt, version.ReactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("update model version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update model version", fmt.Errorf("id %s", version.ID))
	}
	return nil
}

func (r *ModelVersionRepository) CountVersions(ctx context.Context) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM model_versions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count model versions: %w", err)
	}
	return count, nil
}

func scanModelVersion(scan func(dest ...any) error) (*domain.ModelVersion, error) {
	var version domain.ModelVersion
	var status string
	var improvements []byte
	var activatedAt, deactivatedAt, reactivatedAt sql.NullTime

	err := scan(
		&version.ID, &version.Version, &version.BaseModel, &status,
		&version.TrainingFileID, &version.TrainingJobID, &version.FineTunedModel, &version.TrainingError,
		&version.AccuracyBefore, &version.AccuracyAfter, &version.MetricsEstimated, &improvements,
		&version.IsActive, &version.RollbackReason,
		&version.CreatedAt, &activatedAt, &deactivatedAt, &reactivatedAt,
	)
	if err != nil {
		return nil, err
	}

	version.Status = domain.ModelVersionStatus(status)
	if err := json.Unmarshal(improvements, &version.Improvements); err != nil {
		return nil, fmt.Errorf("unmarshal improvements: %w", err)
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		version.ActivatedAt = &t
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		version.DeactivatedAt = &t
	}
	if reactivatedAt.Valid {
		t := reactivatedAt.Time
		version.ReactivatedAt = &t
	}
	return &version, nil
}
