package domain

import (
	"encoding/json"
	"time"
)

type FeedbackType string

const (
	FeedbackTaskClarification FeedbackType = "task_clarification"
	FeedbackManualEdit        FeedbackType = "manual_edit"
	FeedbackFieldCorrection   FeedbackType = "field_correction"
	FeedbackImplicitPositive  FeedbackType = "implicit_positive"
)

type EditMagnitude string

const (
	MagnitudeNone     EditMagnitude = "none"
	MagnitudeMinor    EditMagnitude = "minor"
	MagnitudeModerate EditMagnitude = "moderate"
	MagnitudeMajor    EditMagnitude = "major"
)

type UserRating string

const (
	RatingPoor             UserRating = "poor"
	RatingNeedsImprovement UserRating = "needs_improvement"
	RatingGood             UserRating = "good"
	RatingExcellent        UserRating = "excellent"
)

// FeedbackRecord captures one human correction (or positive signal) on a
// preview. Append-only except for Rating and WasUsedForTraining.
type FeedbackRecord struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	DocumentID string       `json:"document_id"`
	PreviewID  string       `json:"preview_id"`
	Type       FeedbackType `json:"feedback_type"`

	// FieldPath locates the corrected leaf using dot and bracket-index
	// notation, e.g. "tasks_data[2].estimated_hours".
	FieldPath     string          `json:"field_path,omitempty"`
	OriginalData  json.RawMessage `json:"original_data,omitempty"`
	CorrectedData json.RawMessage `json:"corrected_data,omitempty"`
	Magnitude     EditMagnitude   `json:"edit_magnitude"`

	Rating             UserRating `json:"user_rating,omitempty"`
	WasUsedForTraining bool       `json:"was_used_for_training"`
	ModelVersionUsed   string     `json:"model_version_used,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// FeedbackStats is the aggregate view exposed by the API.
type FeedbackStats struct {
	Total    int                  `json:"total"`
	Unused   int                  `json:"unused"`
	ByType   map[FeedbackType]int `json:"by_type"`
	ByRating map[UserRating]int   `json:"by_rating"`
}
