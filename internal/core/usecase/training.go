package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lpellerin/invoiceflow/internal/core/diff"
	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

// DefaultTrainingMinCount is the feedback floor below which no dataset is
// built: too few corrections make fine-tuning counterproductive.
const DefaultTrainingMinCount = 50

const extractionSystemPrompt = "Extract the customer, project, tasks and billing details " +
	"from this invoice or estimate. Respond with the structured JSON schema only."

// TrainingDataUseCase assembles fine-tuning datasets from accumulated
// feedback: for each document it replays the human corrections onto the raw
// extraction, producing the output the model should have given.
type TrainingDataUseCase struct {
	feedback ports.FeedbackRepository
	results  ports.ParseResultRepository
	logger   *slog.Logger
}

func NewTrainingDataUseCase(
	feedback ports.FeedbackRepository,
	results ports.ParseResultRepository,
	logger *slog.Logger,
) *TrainingDataUseCase {
	return &TrainingDataUseCase{
		feedback: feedback,
		results:  results,
		logger:   logger,
	}
}

func (uc *TrainingDataUseCase) PrepareTrainingData(ctx context.Context, minCount int) (*domain.TrainingDataset, error) {
	if minCount <= 0 {
		minCount = DefaultTrainingMinCount
	}

	count, err := uc.feedback.CountEligibleForTraining(ctx)
	if err != nil {
		return nil, err
	}
	if count < minCount {
		return nil, domain.WrapError(domain.ErrInsufficientData, "prepare training data",
			fmt.Errorf("current_count=%d, required_count=%d", count, minCount))
	}

	records, err := uc.feedback.ListEligibleForTraining(ctx)
	if err != nil {
		return nil, err
	}

	byDocument := map[string][]domain.FeedbackRecord{}
	for _, record := range records {
		byDocument[record.DocumentID] = append(byDocument[record.DocumentID], record)
	}
	documentIDs := make([]string, 0, len(byDocument))
	for id := range byDocument {
		documentIDs = append(documentIDs, id)
	}
	sort.Strings(documentIDs)

	dataset := &domain.TrainingDataset{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	for _, documentID := range documentIDs {
		group := byDocument[documentID]
		example, err := uc.buildExample(ctx, documentID, group)
		if err != nil {
			uc.logger.Warn("skipping document in training dataset",
				slog.String("document_id", documentID),
				slog.String("error", err.Error()))
			continue
		}
		dataset.Examples = append(dataset.Examples, *example)
		for _, record := range group {
			dataset.FeedbackIDs = append(dataset.FeedbackIDs, record.ID)
		}
	}
	if len(dataset.Examples) == 0 {
		return nil, domain.WrapError(domain.ErrInsufficientData, "prepare training data",
			fmt.Errorf("no usable examples from %d feedback records", len(records)))
	}

	if err := uc.feedback.MarkUsedForTraining(ctx, dataset.FeedbackIDs); err != nil {
		return nil, fmt.Errorf("mark feedback used: %w", err)
	}

	uc.logger.Info("training dataset prepared",
		slog.String("dataset_id", dataset.ID),
		slog.Int("examples", len(dataset.Examples)),
		slog.Int("feedback_records", len(dataset.FeedbackIDs)))
	return dataset, nil
}

// buildExample replays the document's corrections, in capture order, onto the
// stored extraction to reconstruct the ideal output.
func (uc *TrainingDataUseCase) buildExample(ctx context.Context, documentID string, records []domain.FeedbackRecord) (*domain.TrainingExample, error) {
	result, err := uc.results.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load parse result: %w", err)
	}

	base := toGeneric(result.Data)
	if base == nil {
		return nil, fmt.Errorf("parse result %s has no decodable data", result.ID)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	for _, record := range records {
		if record.FieldPath == "" || len(record.CorrectedData) == 0 {
			continue
		}
		var value any
		if err := json.Unmarshal(record.CorrectedData, &value); err != nil {
			continue
		}
		applied, err := diff.Apply(base, record.FieldPath, value)
		if err != nil {
			uc.logger.Warn("cannot apply correction",
				slog.String("document_id", documentID),
				slog.String("field_path", record.FieldPath),
				slog.String("error", err.Error()))
			continue
		}
		base = applied
	}

	corrected, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal corrected data: %w", err)
	}
	return &domain.TrainingExample{
		SystemPrompt:  extractionSystemPrompt,
		DocumentText:  string(result.Raw),
		CorrectedJSON: string(corrected),
	}, nil
}
