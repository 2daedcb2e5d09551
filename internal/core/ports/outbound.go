package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

// DocumentRepository persists and reads document pipeline state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetParsed(ctx context.Context, id string, docType domain.DocumentType, processedAt time.Time, seconds float64) error
}

// ParseResultRepository holds extraction results, one per document.
// Upsert replaces any prior result for the same document id.
type ParseResultRepository interface {
	Upsert(ctx context.Context, result *domain.ParseResult) error
	GetByDocumentID(ctx context.Context, documentID string) (*domain.ParseResult, error)
}

// PreviewRepository holds the mutable staged record, one per document.
type PreviewRepository interface {
	Upsert(ctx context.Context, preview *domain.Preview) error
	GetByID(ctx context.Context, id string) (*domain.Preview, error)
	GetByDocumentID(ctx context.Context, documentID string) (*domain.Preview, error)
	Update(ctx context.Context, preview *domain.Preview) error
	ListReviewable(ctx context.Context, ownerID string) ([]domain.Preview, error)
}

// FeedbackRepository stores human corrections for later training use.
// Records are append-only; only the rating and the used-for-training flag
// may change after creation.
type FeedbackRepository interface {
	Create(ctx context.Context, record *domain.FeedbackRecord) error
	GetByID(ctx context.Context, id string) (*domain.FeedbackRecord, error)
	UpdateRating(ctx context.Context, id string, rating domain.UserRating) error
	CountEligibleForTraining(ctx context.Context) (int, error)
	ListEligibleForTraining(ctx context.Context) ([]domain.FeedbackRecord, error)
	ListUnusedRated(ctx context.Context, limit int) ([]domain.FeedbackRecord, error)
	MarkUsedForTraining(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (domain.FeedbackStats, error)
}

// ModelVersionRepository persists the extraction-model lifecycle. The
// *ForUpdate variants must be called inside a transaction (see Transactor)
// and take row locks so concurrent activations serialize.
type ModelVersionRepository interface {
	Create(ctx context.Context, version *domain.ModelVersion) error
	GetByID(ctx context.Context, id string) (*domain.ModelVersion, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.ModelVersion, error)
	GetActiveForUpdate(ctx context.Context) (*domain.ModelVersion, error)
	GetActive(ctx context.Context) (*domain.ModelVersion, error)
	List(ctx context.Context) ([]domain.ModelVersion, error)
	ListByStatus(ctx context.Context, status domain.ModelVersionStatus) ([]domain.ModelVersion, error)
	Update(ctx context.Context, version *domain.ModelVersion) error
	CountVersions(ctx context.Context) (int, error)
}

// DomainStore is the owner-scoped entity store the approval commit writes
// into. Its own validation/CRUD rules live outside this subsystem.
type DomainStore interface {
	ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, ownerID, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	UpdateCustomer(ctx context.Context, customer *domain.Customer) error

	ListProjects(ctx context.Context, ownerID, customerID string) ([]domain.Project, error)
	GetProject(ctx context.Context, ownerID, id string) (*domain.Project, error)
	CreateProject(ctx context.Context, project *domain.Project) error
	UpdateProject(ctx context.Context, project *domain.Project) error

	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	GetTask(ctx context.Context, projectID, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, task *domain.Task) error
	UpdateTask(ctx context.Context, task *domain.Task) error

	CreateInvoice(ctx context.Context, invoice *domain.Invoice) error
	CreateEstimate(ctx context.Context, estimate *domain.Estimate) error
	InvoiceNumberExists(ctx context.Context, ownerID, number string) (bool, error)
	EstimateNumberExists(ctx context.Context, ownerID, number string) (bool, error)

	GetTaskTemplateByName(ctx context.Context, ownerID, name string) (*domain.TaskTemplate, error)
	CreateTaskTemplate(ctx context.Context, template *domain.TaskTemplate) error
	UpdateTaskTemplate(ctx context.Context, template *domain.TaskTemplate) error
}

// Transactor runs fn inside a database transaction. Repository calls made
// with the context passed to fn join that transaction; any error rolls the
// whole unit back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes the asynchronous work units. Delivery is
// at-least-once; handlers must be idempotent.
type MessageQueue interface {
	PublishDocumentParse(ctx context.Context, documentID string) error
	PublishPreviewApprove(ctx context.Context, previewID string) error
	SubscribeDocumentParse(ctx context.Context, handler func(context.Context, string) error) error
	SubscribePreviewApprove(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentExtractor is the external vision/extraction boundary: page images
// in, raw JSON extraction out. model selects a fine-tuned override; empty
// means the provider default.
type DocumentExtractor interface {
	Extract(ctx context.Context, doc *domain.Document, model string) (json.RawMessage, error)
}

// PromptRunner runs a free-form prompt against the AI boundary and returns
// the raw JSON response. Used by the task-quality cascade's fallback stage.
type PromptRunner interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// FineTuneJob is the provider-side state of one fine-tuning job.
type FineTuneJob struct {
	Status         string // "running", "succeeded", "failed"
	FineTunedModel string
	Error          string
}

// FineTuner is the external fine-tuning provider boundary.
type FineTuner interface {
	UploadTrainingFile(ctx context.Context, name string, jsonl []byte) (string, error)
	CreateJob(ctx context.Context, fileID, baseModel string) (string, error)
	JobStatus(ctx context.Context, jobID string) (FineTuneJob, error)
}
