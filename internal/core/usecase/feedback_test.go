package usecase

import (
	"context"
	"testing"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

func feedbackPreview() *domain.Preview {
	return &domain.Preview{
		ID:           "prev-1",
		DocumentID:   "doc-1",
		ModelVersion: "v2",
	}
}

func TestCaptureManualEditsRecordsChangedLeaves(t *testing.T) {
	repo := &feedbackRepoFake{}
	uc := NewFeedbackUseCase(repo, testLogger())

	original := stagedData{
		CustomerData: domain.ExtractedCustomer{Name: "Jean Dupond"},
		TasksData:    []domain.ExtractedTask{{Name: "Audit", EstimatedHours: 4}},
	}
	corrected := stagedData{
		CustomerData: domain.ExtractedCustomer{Name: "Jean Dupont"},
		TasksData:    []domain.ExtractedTask{{Name: "Audit", EstimatedHours: 6}},
	}

	records, err := uc.CaptureManualEdits(context.Background(), feedbackPreview(), "user-1", original, corrected)
	if err != nil {
		t.Fatalf("CaptureManualEdits: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (%+v)", len(records), records)
	}

	byPath := map[string]domain.FeedbackRecord{}
	for _, r := range records {
		byPath[r.FieldPath] = r
	}
	nameEdit, ok := byPath["customer_data.name"]
	if !ok {
		t.Fatalf("missing customer_data.name record, got %+v", byPath)
	}
	if nameEdit.Type != domain.FeedbackManualEdit {
		t.Fatalf("type = %s", nameEdit.Type)
	}
	if nameEdit.Magnitude != domain.MagnitudeMinor {
		t.Fatalf("one-letter fix magnitude = %s, want minor", nameEdit.Magnitude)
	}
	if nameEdit.ModelVersionUsed != "v2" {
		t.Fatalf("model version = %s", nameEdit.ModelVersionUsed)
	}

	hoursEdit, ok := byPath["tasks_data[0].estimated_hours"]
	if !ok {
		t.Fatalf("missing hours record, got %+v", byPath)
	}
	if hoursEdit.Magnitude != domain.MagnitudeModerate {
		t.Fatalf("numeric change magnitude = %s, want moderate", hoursEdit.Magnitude)
	}
}

func TestCaptureManualEditsNoChangesNoRecords(t *testing.T) {
	repo := &feedbackRepoFake{}
	uc := NewFeedbackUseCase(repo, testLogger())

	data := stagedData{CustomerData: domain.ExtractedCustomer{Name: "Jean"}}
	records, err := uc.CaptureManualEdits(context.Background(), feedbackPreview(), "user-1", data, data)
	if err != nil {
		t.Fatalf("CaptureManualEdits: %v", err)
	}
	if len(records) != 0 || len(repo.created) != 0 {
		t.Fatalf("records = %+v", records)
	}
}

func TestCaptureManualEditsAddedFieldIsCorrection(t *testing.T) {
	repo := &feedbackRepoFake{}
	uc := NewFeedbackUseCase(repo, testLogger())

	original := map[string]any{"customer_data": map[string]any{"name": "Jean"}}
	corrected := map[string]any{"customer_data": map[string]any{"name": "Jean", "email": "jean@example.fr"}}

	records, err := uc.CaptureManualEdits(context.Background(), feedbackPreview(), "user-1", original, corrected)
	if err != nil {
		t.Fatalf("CaptureManualEdits: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Type != domain.FeedbackFieldCorrection || records[0].Magnitude != domain.MagnitudeModerate {
		t.Fatalf("record = %+v", records[0])
	}
}

func TestCaptureApprovalWithoutEdits(t *testing.T) {
	repo := &feedbackRepoFake{}
	uc := NewFeedbackUseCase(repo, testLogger())

	record, err := uc.CaptureApprovalWithoutEdits(context.Background(), feedbackPreview(), "user-1")
	if err != nil {
		t.Fatalf("CaptureApprovalWithoutEdits: %v", err)
	}
	if record.Type != domain.FeedbackImplicitPositive {
		t.Fatalf("type = %s", record.Type)
	}
	if record.Rating != domain.RatingExcellent {
		t.Fatalf("rating = %s", record.Rating)
	}
	if record.DocumentID != "doc-1" || record.PreviewID != "prev-1" {
		t.Fatalf("record = %+v", record)
	}
}

func TestCaptureTaskClarificationRatesGain(t *testing.T) {
	uc := NewFeedbackUseCase(&feedbackRepoFake{}, testLogger())

	cases := []struct {
		before, after int
		want          domain.UserRating
	}{
		{40, 75, domain.RatingExcellent},
		{50, 72, domain.RatingGood},
		{60, 65, domain.RatingNeedsImprovement},
	}
	for _, tc := range cases {
		record, err := uc.CaptureTaskClarification(context.Background(), feedbackPreview(), "user-1", tc.before, tc.after)
		if err != nil {
			t.Fatalf("CaptureTaskClarification: %v", err)
		}
		if record.Rating != tc.want {
			t.Errorf("gain %d->%d rating = %s, want %s", tc.before, tc.after, record.Rating, tc.want)
		}
	}
}

func TestRateFeedbackPersistsRating(t *testing.T) {
	repo := &feedbackRepoFake{created: []domain.FeedbackRecord{
		{ID: "fb-1", Type: domain.FeedbackManualEdit},
	}}
	uc := NewFeedbackUseCase(repo, testLogger())

	rated, err := uc.Rate(context.Background(), "fb-1", domain.RatingGood)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rated.Rating != domain.RatingGood {
		t.Fatalf("rating = %s, want good", rated.Rating)
	}
	if repo.created[0].Rating != domain.RatingGood {
		t.Fatalf("stored rating = %s", repo.created[0].Rating)
	}
}

func TestRateFeedbackRejectsUnknownRating(t *testing.T) {
	repo := &feedbackRepoFake{created: []domain.FeedbackRecord{{ID: "fb-1"}}}
	uc := NewFeedbackUseCase(repo, testLogger())

	_, err := uc.Rate(context.Background(), "fb-1", domain.UserRating("amazing"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if repo.created[0].Rating != "" {
		t.Fatalf("rating must stay unset, got %s", repo.created[0].Rating)
	}
}

func TestEditMagnitudeBands(t *testing.T) {
	cases := []struct {
		old, new string
		want     domain.EditMagnitude
	}{
		{"Jean Dupont", "Jean Dupont", domain.MagnitudeNone},
		{"Jean Dupond", "Jean Dupont", domain.MagnitudeMinor},
		{"Refonte site", "Refonte du site web", domain.MagnitudeModerate},
		{"Audit", "Peinture exterieure complete", domain.MagnitudeMajor},
	}
	for _, tc := range cases {
		if got := editMagnitude(tc.old, tc.new); got != tc.want {
			t.Errorf("editMagnitude(%q, %q) = %s, want %s", tc.old, tc.new, got, tc.want)
		}
	}
}
