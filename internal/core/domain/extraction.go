package domain

import (
	"encoding/json"
	"time"
)

// ConfidenceScores are the per-section extraction confidences, integers 0-100.
type ConfidenceScores struct {
	Overall  int `json:"overall"`
	Customer int `json:"customer"`
	Project  int `json:"project"`
	Tasks    int `json:"tasks"`
	Pricing  int `json:"pricing"`
}

type ExtractedCustomer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
}

type ExtractedProject struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type ExtractedTask struct {
	Name           string  `json:"name,omitempty"`
	Description    string  `json:"description,omitempty"`
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	ActualHours    float64 `json:"actual_hours,omitempty"`
	HourlyRate     float64 `json:"hourly_rate,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Category       string  `json:"category,omitempty"`
}

// ExtractedBilling holds the invoice-or-estimate pricing block. ValidUntil is
// only meaningful for estimates, DueDate for invoices.
type ExtractedBilling struct {
	Number     string  `json:"number,omitempty"`
	IssueDate  string  `json:"issue_date,omitempty"`
	DueDate    string  `json:"due_date,omitempty"`
	ValidUntil string  `json:"valid_until,omitempty"`
	Subtotal   float64 `json:"subtotal,omitempty"`
	TaxRate    float64 `json:"tax_rate,omitempty"`
	TaxAmount  float64 `json:"tax_amount,omitempty"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency,omitempty"`
}

// ExtractedData is the normalized output of the extraction boundary.
type ExtractedData struct {
	DocumentType DocumentType      `json:"document_type"`
	Language     string            `json:"language"`
	Confidence   ConfidenceScores  `json:"confidence_scores"`
	Customer     ExtractedCustomer `json:"customer"`
	Project      ExtractedProject  `json:"project"`
	Tasks        []ExtractedTask   `json:"tasks"`
	Billing      ExtractedBilling  `json:"invoice_or_estimate"`
}

// ParseResult is the immutable record of one extraction run, exactly one per
// document. Re-parsing replaces it by document id.
type ParseResult struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Raw        json.RawMessage  `json:"raw,omitempty"`
	Data       ExtractedData    `json:"data"`
	Confidence ConfidenceScores `json:"confidence_scores"`
	Language   string           `json:"language"`
	// ModelVersion is the extraction model version label in use when this
	// result was produced; empty when the provider default ran.
	ModelVersion string    `json:"model_version,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
