package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lpellerin/invoiceflow/internal/core/diff"
	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/fuzz"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

// FeedbackUseCase turns review activity into training signal: manual edits
// become per-field correction records, untouched approvals become implicit
// positives.
type FeedbackUseCase struct {
	repo   ports.FeedbackRepository
	logger *slog.Logger
}

func NewFeedbackUseCase(repo ports.FeedbackRepository, logger *slog.Logger) *FeedbackUseCase {
	return &FeedbackUseCase{repo: repo, logger: logger}
}

// CaptureManualEdits diffs the staged data before and after an edit and
// records one feedback record per changed leaf. Removed leaves are not
// training signal and are skipped.
func (uc *FeedbackUseCase) CaptureManualEdits(
	ctx context.Context,
	preview *domain.Preview,
	userID string,
	original, corrected any,
) ([]domain.FeedbackRecord, error) {
	changes := diff.Compute(toGeneric(original), toGeneric(corrected))
	if len(changes) == 0 {
		return nil, nil
	}

	records := make([]domain.FeedbackRecord, 0, len(changes))
	for _, change := range changes {
		var record *domain.FeedbackRecord
		switch change.Kind {
		case diff.KindChanged:
			record = uc.newRecord(preview, userID, domain.FeedbackManualEdit, change.Path)
			record.Magnitude = editMagnitude(change.Old, change.New)
			record.OriginalData = mustJSON(change.Old)
			record.CorrectedData = mustJSON(change.New)
		case diff.KindAdded:
			record = uc.newRecord(preview, userID, domain.FeedbackFieldCorrection, change.Path)
			record.Magnitude = domain.MagnitudeModerate
			record.CorrectedData = mustJSON(change.New)
		default:
			continue
		}
		if record.Magnitude == domain.MagnitudeNone {
			continue
		}
		if err := uc.repo.Create(ctx, record); err != nil {
			return records, fmt.Errorf("store feedback for %s: %w", change.Path, err)
		}
		records = append(records, *record)
	}

	uc.logger.Info("captured edit feedback",
		slog.String("preview_id", preview.ID),
		slog.Int("records", len(records)))
	return records, nil
}

// CaptureApprovalWithoutEdits records an approval of untouched extraction
// output as a strong positive signal for the model version that produced it.
func (uc *FeedbackUseCase) CaptureApprovalWithoutEdits(
	ctx context.Context,
	preview *domain.Preview,
	userID string,
) (*domain.FeedbackRecord, error) {
	record := uc.newRecord(preview, userID, domain.FeedbackImplicitPositive, "")
	record.Magnitude = domain.MagnitudeNone
	record.Rating = domain.RatingExcellent
	if err := uc.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store approval feedback: %w", err)
	}
	return record, nil
}

// CaptureTaskClarification records a quality-cascade outcome: the rating
// reflects how much clarification improved the task.
func (uc *FeedbackUseCase) CaptureTaskClarification(
	ctx context.Context,
	preview *domain.Preview,
	userID string,
	originalClarity, newClarity int,
) (*domain.FeedbackRecord, error) {
	record := uc.newRecord(preview, userID, domain.FeedbackTaskClarification, "")
	record.Magnitude = domain.MagnitudeModerate
	record.OriginalData = mustJSON(originalClarity)
	record.CorrectedData = mustJSON(newClarity)

	gain := newClarity - originalClarity
	switch {
	case gain >= 30:
		record.Rating = domain.RatingExcellent
	case gain >= 20:
		record.Rating = domain.RatingGood
	default:
		record.Rating = domain.RatingNeedsImprovement
	}

	if err := uc.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store clarification feedback: %w", err)
	}
	return record, nil
}

// Rate attaches a user rating to an existing record. Ratings gate training
// eligibility, so this is the one edit allowed after capture.
func (uc *FeedbackUseCase) Rate(ctx context.Context, id string, rating domain.UserRating) (*domain.FeedbackRecord, error) {
	switch rating {
	case domain.RatingPoor, domain.RatingNeedsImprovement, domain.RatingGood, domain.RatingExcellent:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "rate feedback",
			fmt.Errorf("unknown rating %q", rating))
	}
	if err := uc.repo.UpdateRating(ctx, id, rating); err != nil {
		return nil, err
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *FeedbackUseCase) Stats(ctx context.Context) (domain.FeedbackStats, error) {
	return uc.repo.Stats(ctx)
}

func (uc *FeedbackUseCase) newRecord(preview *domain.Preview, userID string, kind domain.FeedbackType, path string) *domain.FeedbackRecord {
	return &domain.FeedbackRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		DocumentID:       preview.DocumentID,
		PreviewID:        preview.ID,
		Type:             kind,
		FieldPath:        path,
		ModelVersionUsed: preview.ModelVersion,
		CreatedAt:        time.Now().UTC(),
	}
}

// editMagnitude grades how far the correction moved the value. String edits
// use fuzzy similarity; any other type change is a moderate correction.
func editMagnitude(oldVal, newVal any) domain.EditMagnitude {
	oldStr, oldOK := oldVal.(string)
	newStr, newOK := newVal.(string)
	if !oldOK || !newOK {
		if fmt.Sprint(oldVal) == fmt.Sprint(newVal) {
			return domain.MagnitudeNone
		}
		return domain.MagnitudeModerate
	}
	if oldStr == newStr {
		return domain.MagnitudeNone
	}
	switch score := fuzz.Ratio(oldStr, newStr); {
	case score > 90:
		return domain.MagnitudeMinor
	case score > 60:
		return domain.MagnitudeModerate
	default:
		return domain.MagnitudeMajor
	}
}

// toGeneric round-trips through JSON so the diff walks plain maps and slices
// regardless of the concrete input type.
func toGeneric(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
