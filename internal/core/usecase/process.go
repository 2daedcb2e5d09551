package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/match"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

// ProcessDocumentUseCase owns the document state machine: it drives one
// document from uploaded through extraction, validation, entity matching and
// preview staging to parsed, or to error with the failure message captured
// verbatim.
type ProcessDocumentUseCase struct {
	docs      ports.DocumentRepository
	results   ports.ParseResultRepository
	previews  ports.PreviewRepository
	store     ports.DomainStore
	models    ports.ModelVersionRepository
	extractor ports.DocumentExtractor
}

func NewProcessDocumentUseCase(
	docs ports.DocumentRepository,
	results ports.ParseResultRepository,
	previews ports.PreviewRepository,
	store ports.DomainStore,
	models ports.ModelVersionRepository,
	extractor ports.DocumentExtractor,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		docs:      docs,
		results:   results,
		previews:  previews,
		store:     store,
		models:    models,
		extractor: extractor,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusApproved {
		// Redelivered work unit for a finished document; nothing to redo.
		return nil
	}

	if err := uc.docs.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	started := time.Now().UTC()
	if err := uc.runPipeline(ctx, doc, started); err != nil {
		if failErr := uc.docs.UpdateStatus(ctx, documentID, domain.StatusError, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark error status: %v", err, failErr)
		}
		return err
	}
	return nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document, started time.Time) error {
	modelVersion := uc.activeModelVersion(ctx)

	raw, err := uc.extract(ctx, doc, modelVersion)
	if err != nil {
		return err
	}

	data, err := validateExtraction(raw)
	if err != nil {
		return err
	}

	result := &domain.ParseResult{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		Raw:          raw,
		Data:         data,
		Confidence:   data.Confidence,
		Language:     data.Language,
		ModelVersion: versionLabel(modelVersion),
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.results.Upsert(ctx, result); err != nil {
		return fmt.Errorf("persist parse result: %w", err)
	}

	preview, err := uc.assemblePreview(ctx, doc, result)
	if err != nil {
		return err
	}
	if err := uc.previews.Upsert(ctx, preview); err != nil {
		return fmt.Errorf("persist preview: %w", err)
	}

	seconds := time.Since(started).Seconds()
	if err := uc.docs.SetParsed(ctx, doc.ID, data.DocumentType, time.Now().UTC(), seconds); err != nil {
		return fmt.Errorf("set status=parsed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) extract(ctx context.Context, doc *domain.Document, model *domain.ModelVersion) (json.RawMessage, error) {
	raw, err := uc.extractor.Extract(ctx, doc, fineTunedModelID(model))
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailed, "extract document", err)
	}
	if !json.Valid(raw) {
		return nil, domain.WrapError(domain.ErrExtractionFailed, "extract document",
			fmt.Errorf("boundary returned non-JSON payload"))
	}
	return raw, nil
}

func (uc *ProcessDocumentUseCase) assemblePreview(ctx context.Context, doc *domain.Document, result *domain.ParseResult) (*domain.Preview, error) {
	data := result.Data

	customers, err := uc.store.ListCustomers(ctx, doc.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	customerOutcome := match.Customer(data.Customer, customers)

	projectOutcome := match.ProjectOutcome{
		Match: domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: 0},
	}
	var existingTasks []domain.Task
	if customerOutcome.Matched != nil {
		projects, err := uc.store.ListProjects(ctx, doc.OwnerID, customerOutcome.Matched.ID)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		projectOutcome = match.Project(data.Project, projects)

		if projectOutcome.Matched != nil {
			existingTasks, err = uc.store.ListTasks(ctx, projectOutcome.Matched.ID)
			if err != nil {
				return nil, fmt.Errorf("list tasks: %w", err)
			}
		}
	}
	taskMatches := match.Tasks(data.Tasks, existingTasks)
	findings := match.Detect(data, customerOutcome, projectOutcome)

	now := time.Now().UTC()
	preview := &domain.Preview{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		ParseResultID: result.ID,
		OwnerID:       doc.OwnerID,
		DocumentType:  data.DocumentType,
		Status:        domain.PreviewPendingReview,

		CustomerData: data.Customer,
		ProjectData:  data.Project,
		TasksData:    data.Tasks,
		BillingData:  data.Billing,

		CustomerMatch: customerOutcome.Match,
		ProjectMatch:  projectOutcome.Match,
		TaskMatches:   taskMatches,

		Conflicts: findings.Conflicts,
		Warnings:  findings.Warnings,

		ParseConfidence: data.Confidence.Overall,
		ModelVersion:    result.ModelVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	preview.AutoApproveEligible = uc.autoApproveEligible(preview)
	return preview, nil
}

// autoApproveEligible is the parse-time part of the safe auto-approve gate:
// no conflicts, no merge ambiguity on the customer, decent confidence, and
// every task named. The batch processor re-checks quality and threshold at
// approval time.
func (uc *ProcessDocumentUseCase) autoApproveEligible(preview *domain.Preview) bool {
	if len(preview.Conflicts) > 0 {
		return false
	}
	if preview.CustomerMatch.Action == domain.ActionMerge {
		return false
	}
	if preview.ParseConfidence < 80 {
		return false
	}
	for _, m := range preview.TaskMatches {
		if m.Action == domain.ActionSkip {
			return false
		}
	}
	return len(preview.TasksData) > 0
}

func (uc *ProcessDocumentUseCase) activeModelVersion(ctx context.Context) *domain.ModelVersion {
	active, err := uc.models.GetActive(ctx)
	if err != nil {
		// No active fine-tune is the normal state early on; the provider
		// default model serves extraction.
		return nil
	}
	return active
}

func versionLabel(model *domain.ModelVersion) string {
	if model == nil {
		return ""
	}
	return model.Version
}

func fineTunedModelID(model *domain.ModelVersion) string {
	if model == nil {
		return ""
	}
	return model.FineTunedModel
}
