package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates every table the pipeline needs. Bootstrap DDL is
// serialized across api/worker startups with an advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026053101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	document_type TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	processing_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS parse_results (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL UNIQUE REFERENCES documents(id),
	raw JSONB NOT NULL,
	data JSONB NOT NULL,
	confidence JSONB NOT NULL,
	language TEXT NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS previews (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL UNIQUE REFERENCES documents(id),
	parse_result_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	status TEXT NOT NULL,
	payload JSONB NOT NULL,
	reviewed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_previews_owner_status ON previews(owner_id, status);

CREATE TABLE IF NOT EXISTS feedback_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	preview_id TEXT NOT NULL,
	feedback_type TEXT NOT NULL,
	field_path TEXT NOT NULL DEFAULT '',
	original_data JSONB,
	corrected_data JSONB,
	edit_magnitude TEXT NOT NULL,
	user_rating TEXT NOT NULL DEFAULT '',
	was_used_for_training BOOLEAN NOT NULL DEFAULT FALSE,
	model_version_used TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_training ON feedback_records(was_used_for_training, feedback_type);
CREATE INDEX IF NOT EXISTS idx_feedback_document ON feedback_records(document_id);

CREATE TABLE IF NOT EXISTS model_versions (
	id TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	base_model TEXT NOT NULL,
	status TEXT NOT NULL,
	training_file_id TEXT NOT NULL DEFAULT '',
	training_job_id TEXT NOT NULL DEFAULT '',
	fine_tuned_model TEXT NOT NULL DEFAULT '',
	training_error TEXT NOT NULL DEFAULT '',
	accuracy_before DOUBLE PRECISION NOT NULL DEFAULT 0,
	accuracy_after DOUBLE PRECISION NOT NULL DEFAULT 0,
	metrics_estimated BOOLEAN NOT NULL DEFAULT FALSE,
	improvements JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	rollback_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	activated_at TIMESTAMPTZ,
	deactivated_at TIMESTAMPTZ,
	reactivated_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_model_versions_active ON model_versions(is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_owner ON customers(owner_id);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	customer_id TEXT NOT NULL REFERENCES customers(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	budget DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_date TEXT NOT NULL DEFAULT '',
	end_date TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_owner_customer ON projects(owner_id, customer_id);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	estimated_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
	actual_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
	hourly_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	number TEXT NOT NULL,
	issue_date TEXT NOT NULL DEFAULT '',
	due_date TEXT NOT NULL DEFAULT '',
	subtotal DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	total DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, number)
);

CREATE TABLE IF NOT EXISTS estimates (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	number TEXT NOT NULL,
	issue_date TEXT NOT NULL DEFAULT '',
	valid_until TEXT NOT NULL DEFAULT '',
	subtotal DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	total DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, number)
);

CREATE TABLE IF NOT EXISTS task_templates (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	avg_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	weight_sum DOUBLE PRECISION NOT NULL DEFAULT 0,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, name)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
