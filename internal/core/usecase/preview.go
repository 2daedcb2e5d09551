package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

// PreviewUseCase is the human-review surface: read, edit, approve, reject.
// Approval here only flips the preview status and enqueues the commit; the
// transactional entity creation happens in ApprovalOrchestrator.
type PreviewUseCase struct {
	previews ports.PreviewRepository
	docs     ports.DocumentRepository
	queue    ports.MessageQueue
	feedback ports.FeedbackService
	logger   *slog.Logger
}

func NewPreviewUseCase(
	previews ports.PreviewRepository,
	docs ports.DocumentRepository,
	queue ports.MessageQueue,
	feedback ports.FeedbackService,
	logger *slog.Logger,
) *PreviewUseCase {
	return &PreviewUseCase{
		previews: previews,
		docs:     docs,
		queue:    queue,
		feedback: feedback,
		logger:   logger,
	}
}

func (uc *PreviewUseCase) GetByID(ctx context.Context, id string) (*domain.Preview, error) {
	return uc.previews.GetByID(ctx, id)
}

func (uc *PreviewUseCase) GetByDocumentID(ctx context.Context, documentID string) (*domain.Preview, error) {
	return uc.previews.GetByDocumentID(ctx, documentID)
}

// Edit applies a partial patch to the staged data. Edits are only allowed
// while the preview is still reviewable; each edit is captured as feedback
// before the new data overwrites the old.
func (uc *PreviewUseCase) Edit(ctx context.Context, id, userID string, patch ports.PreviewPatch) (*domain.Preview, error) {
	preview, err := uc.previews.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if preview.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrConflict, "edit preview",
			fmt.Errorf("preview %s is %s and can no longer be edited", id, preview.Status))
	}

	original := snapshotStagedData(preview)
	applyPatch(preview, patch)
	corrected := snapshotStagedData(preview)

	if uc.feedback != nil {
		if _, err := uc.feedback.CaptureManualEdits(ctx, preview, userID, original, corrected); err != nil {
			// Feedback is training signal, not review state; losing it must
			// not block the edit itself.
			uc.logger.Warn("failed to capture edit feedback",
				slog.String("preview_id", id), slog.String("error", err.Error()))
		}
	}

	preview.WasEdited = true
	preview.AutoApproveEligible = false
	preview.UpdatedAt = time.Now().UTC()

	if err := uc.previews.Update(ctx, preview); err != nil {
		return nil, fmt.Errorf("update preview: %w", err)
	}
	return preview, nil
}

// Approve marks the preview approved and enqueues the transactional commit.
// An approval of an untouched preview is itself a positive training signal.
func (uc *PreviewUseCase) Approve(ctx context.Context, id, userID string) (*domain.Preview, error) {
	preview, err := uc.previews.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if preview.Status == domain.PreviewApproved {
		return preview, nil
	}
	if preview.Status == domain.PreviewRejected {
		return nil, domain.WrapError(domain.ErrConflict, "approve preview",
			fmt.Errorf("preview %s was rejected and cannot be approved", id))
	}

	if uc.feedback != nil && !preview.WasEdited {
		if _, err := uc.feedback.CaptureApprovalWithoutEdits(ctx, preview, userID); err != nil {
			uc.logger.Warn("failed to capture approval feedback",
				slog.String("preview_id", id), slog.String("error", err.Error()))
		}
	}

	now := time.Now().UTC()
	preview.Status = domain.PreviewApproved
	preview.ReviewedAt = &now
	preview.UpdatedAt = now
	if err := uc.previews.Update(ctx, preview); err != nil {
		return nil, fmt.Errorf("update preview: %w", err)
	}

	if err := uc.queue.PublishPreviewApprove(ctx, preview.ID); err != nil {
		return nil, fmt.Errorf("enqueue approval commit: %w", err)
	}

	uc.logger.Info("preview approved",
		slog.String("preview_id", preview.ID),
		slog.String("document_id", preview.DocumentID),
		slog.Bool("was_edited", preview.WasEdited))
	return preview, nil
}

// Reject closes out the preview and marks the source document rejected.
// Nothing is created; the staged data is kept for audit.
func (uc *PreviewUseCase) Reject(ctx context.Context, id, userID string) (*domain.Preview, error) {
	preview, err := uc.previews.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if preview.Status == domain.PreviewRejected {
		return preview, nil
	}
	if preview.Status == domain.PreviewApproved {
		return nil, domain.WrapError(domain.ErrConflict, "reject preview",
			fmt.Errorf("preview %s was approved and cannot be rejected", id))
	}

	now := time.Now().UTC()
	preview.Status = domain.PreviewRejected
	preview.ReviewedAt = &now
	preview.UpdatedAt = now
	if err := uc.previews.Update(ctx, preview); err != nil {
		return nil, fmt.Errorf("update preview: %w", err)
	}

	if err := uc.docs.UpdateStatus(ctx, preview.DocumentID, domain.StatusRejected, ""); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("update document status: %w", err)
		}
	}

	uc.logger.Info("preview rejected",
		slog.String("preview_id", preview.ID),
		slog.String("document_id", preview.DocumentID),
		slog.String("user_id", userID))
	return preview, nil
}

// stagedData is the editable subset of a preview, used for feedback diffing.
type stagedData struct {
	CustomerData domain.ExtractedCustomer `json:"customer_data"`
	ProjectData  domain.ExtractedProject  `json:"project_data"`
	TasksData    []domain.ExtractedTask   `json:"tasks_data"`
	BillingData  domain.ExtractedBilling  `json:"billing_data"`
}

func snapshotStagedData(p *domain.Preview) stagedData {
	tasks := make([]domain.ExtractedTask, len(p.TasksData))
	copy(tasks, p.TasksData)
	return stagedData{
		CustomerData: p.CustomerData,
		ProjectData:  p.ProjectData,
		TasksData:    tasks,
		BillingData:  p.BillingData,
	}
}

func applyPatch(p *domain.Preview, patch ports.PreviewPatch) {
	if patch.CustomerData != nil {
		p.CustomerData = *patch.CustomerData
	}
	if patch.ProjectData != nil {
		p.ProjectData = *patch.ProjectData
	}
	if patch.TasksData != nil {
		p.TasksData = *patch.TasksData
	}
	if patch.BillingData != nil {
		p.BillingData = *patch.BillingData
	}
	if patch.Status != nil && !patch.Status.Terminal() {
		p.Status = *patch.Status
	}
}
