package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

var requiredExtractionKeys = []string{
	"document_type",
	"language",
	"confidence_scores",
	"customer",
	"project",
	"tasks",
	"invoice_or_estimate",
}

// validateExtraction checks the raw extraction payload against the boundary
// schema and decodes it. All violations are collected so the error message
// names every failed check, not just the first.
func validateExtraction(raw json.RawMessage) (domain.ExtractedData, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return domain.ExtractedData{}, domain.WrapError(domain.ErrExtractionFailed, "decode extraction", err)
	}

	var violations []string
	for _, key := range requiredExtractionKeys {
		if _, ok := generic[key]; !ok {
			violations = append(violations, fmt.Sprintf("missing required field %q", key))
		}
	}
	if len(violations) > 0 {
		return domain.ExtractedData{}, validationError(violations)
	}

	// The numeric-total check runs on the generic form first: a string total
	// would abort struct decoding with a less useful message.
	if err := checkNumericTotal(generic); err != nil {
		violations = append(violations, err.Error())
	}

	var data domain.ExtractedData
	if err := json.Unmarshal(raw, &data); err != nil {
		violations = append(violations, fmt.Sprintf("malformed extraction structure: %v", err))
		return domain.ExtractedData{}, validationError(violations)
	}

	if data.DocumentType != domain.DocumentTypeInvoice && data.DocumentType != domain.DocumentTypeEstimate {
		violations = append(violations, fmt.Sprintf("invalid document_type %q", data.DocumentType))
	}
	if data.Language != "en" && data.Language != "fr" {
		violations = append(violations, fmt.Sprintf("invalid language %q", data.Language))
	}
	if len(data.Tasks) == 0 {
		violations = append(violations, "task list is empty")
	}
	violations = append(violations, confidenceViolations(data.Confidence)...)
	if strings.TrimSpace(data.Customer.Name) == "" && strings.TrimSpace(data.Customer.Company) == "" {
		violations = append(violations, "customer has neither name nor company")
	}

	if len(violations) > 0 {
		return domain.ExtractedData{}, validationError(violations)
	}
	return data, nil
}

func confidenceViolations(scores domain.ConfidenceScores) []string {
	checks := []struct {
		name  string
		value int
	}{
		{"overall", scores.Overall},
		{"customer", scores.Customer},
		{"project", scores.Project},
		{"tasks", scores.Tasks},
		{"pricing", scores.Pricing},
	}
	var out []string
	for _, c := range checks {
		if c.value < 0 || c.value > 100 {
			out = append(out, fmt.Sprintf("confidence score %q out of range: %d", c.name, c.value))
		}
	}
	return out
}

// checkNumericTotal inspects the raw payload: a total the provider serialized
// as a string would survive struct decoding as a zero, so the check has to
// happen on the generic form.
func checkNumericTotal(generic map[string]any) error {
	billing, ok := generic["invoice_or_estimate"].(map[string]any)
	if !ok {
		return fmt.Errorf("invoice_or_estimate is not an object")
	}
	total, ok := billing["total"]
	if !ok {
		return fmt.Errorf("invoice_or_estimate.total is missing")
	}
	if _, ok := total.(float64); !ok {
		return fmt.Errorf("invoice_or_estimate.total is not numeric (got %T)", total)
	}
	return nil
}

func validationError(violations []string) error {
	return domain.WrapError(domain.ErrValidationFailed, "validate extraction",
		fmt.Errorf("%s", strings.Join(violations, "; ")))
}
