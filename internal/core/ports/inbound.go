package ports

import (
	"context"
	"io"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload and re-parse.
type DocumentIngestor interface {
	Upload(ctx context.Context, ownerID, filename, mimeType string, body io.Reader) (*domain.Document, error)
	Reparse(ctx context.Context, documentID string) error
}

// DocumentProcessor runs the asynchronous parse pipeline for one document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// PreviewPatch is a partial edit of the staged data. Nil fields are left
// untouched.
type PreviewPatch struct {
	CustomerData *domain.ExtractedCustomer `json:"customer_data,omitempty"`
	ProjectData  *domain.ExtractedProject  `json:"project_data,omitempty"`
	TasksData    *[]domain.ExtractedTask   `json:"tasks_data,omitempty"`
	BillingData  *domain.ExtractedBilling  `json:"billing_data,omitempty"`
	Status       *domain.PreviewStatus     `json:"status,omitempty"`
}

// PreviewService is the human-review surface over staged previews.
type PreviewService interface {
	GetByID(ctx context.Context, id string) (*domain.Preview, error)
	GetByDocumentID(ctx context.Context, documentID string) (*domain.Preview, error)
	Edit(ctx context.Context, id, userID string, patch PreviewPatch) (*domain.Preview, error)
	Approve(ctx context.Context, id, userID string) (*domain.Preview, error)
	Reject(ctx context.Context, id, userID string) (*domain.Preview, error)
}

// ApprovalCommitter turns an approved preview into domain entities, all or
// nothing.
type ApprovalCommitter interface {
	CommitApproval(ctx context.Context, previewID string) error
}

// BatchService is the read-side analytics and bulk-action surface.
type BatchService interface {
	Summary(ctx context.Context, ownerID string) (*domain.BatchSummary, error)
	Patterns(ctx context.Context, ownerID string) ([]domain.Pattern, error)
	BulkApprove(ctx context.Context, ownerID, userID string, previewIDs []string) (*domain.BatchResult, error)
	BulkReject(ctx context.Context, ownerID, userID string, previewIDs []string) (*domain.BatchResult, error)
	AutoApproveSafe(ctx context.Context, ownerID, userID string, threshold int) (*domain.BatchResult, error)
}

// FeedbackService captures human corrections as training signal.
type FeedbackService interface {
	CaptureManualEdits(ctx context.Context, preview *domain.Preview, userID string, original, corrected any) ([]domain.FeedbackRecord, error)
	CaptureApprovalWithoutEdits(ctx context.Context, preview *domain.Preview, userID string) (*domain.FeedbackRecord, error)
	CaptureTaskClarification(ctx context.Context, preview *domain.Preview, userID string, originalClarity, newClarity int) (*domain.FeedbackRecord, error)
	Rate(ctx context.Context, id string, rating domain.UserRating) (*domain.FeedbackRecord, error)
	Stats(ctx context.Context) (domain.FeedbackStats, error)
}

// TrainingDataBuilder assembles fine-tuning datasets from rated feedback.
type TrainingDataBuilder interface {
	PrepareTrainingData(ctx context.Context, minCount int) (*domain.TrainingDataset, error)
}

// ModelManager owns the extraction-model lifecycle.
type ModelManager interface {
	StartTraining(ctx context.Context, minCount int) (*domain.ModelVersion, error)
	CheckTrainingStatus(ctx context.Context, versionID string) (*domain.ModelVersion, error)
	EvaluateModel(ctx context.Context, versionID string) (*domain.ModelVersion, error)
	ActivateModel(ctx context.Context, versionID string, force bool) (*domain.ModelVersion, error)
	RollbackToPrevious(ctx context.Context, reason string) (*domain.ModelVersion, error)
	List(ctx context.Context) ([]domain.ModelVersion, error)
	Active(ctx context.Context) (*domain.ModelVersion, error)
	PollPending(ctx context.Context) error
}
