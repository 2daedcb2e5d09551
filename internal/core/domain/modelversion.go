package domain

import "time"

type ModelVersionStatus string

const (
	ModelTraining   ModelVersionStatus = "training"
	ModelEvaluating ModelVersionStatus = "evaluating"
	ModelReady      ModelVersionStatus = "ready"
	ModelActive     ModelVersionStatus = "active"
	ModelArchived   ModelVersionStatus = "archived"
	ModelFailed     ModelVersionStatus = "failed"
)

// ModelVersion tracks one fine-tuned extraction model through the
// training -> evaluating -> ready -> active/archived lifecycle.
// Invariant: at most one version has IsActive=true at any time; every
// transition touching IsActive goes through the version manager's
// locked activation path.
type ModelVersion struct {
	ID        string             `json:"id"`
	Version   string             `json:"version"`
	BaseModel string             `json:"base_model"`
	Status    ModelVersionStatus `json:"status"`

	TrainingFileID string `json:"training_file_id,omitempty"`
	TrainingJobID  string `json:"training_job_id,omitempty"`
	FineTunedModel string `json:"fine_tuned_model,omitempty"`
	TrainingError  string `json:"training_error,omitempty"`

	AccuracyBefore   float64  `json:"accuracy_before"`
	AccuracyAfter    float64  `json:"accuracy_after"`
	MetricsEstimated bool     `json:"metrics_estimated"`
	Improvements     []string `json:"improvements,omitempty"`

	IsActive       bool   `json:"is_active"`
	RollbackReason string `json:"rollback_reason,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	ReactivatedAt *time.Time `json:"reactivated_at,omitempty"`
}

// TrainingExample is one fine-tuning sample: the extraction instruction, the
// source document text, and the human-corrected structured output.
type TrainingExample struct {
	SystemPrompt  string `json:"system_prompt"`
	DocumentText  string `json:"document_text"`
	CorrectedJSON string `json:"corrected_json"`
}

// TrainingDataset is an assembled fine-tuning dataset and the feedback
// records it consumed.
type TrainingDataset struct {
	ID          string            `json:"id"`
	Examples    []TrainingExample `json:"examples"`
	FeedbackIDs []string          `json:"feedback_ids"`
	CreatedAt   time.Time         `json:"created_at"`
}
