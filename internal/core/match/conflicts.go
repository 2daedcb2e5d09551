package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/fuzz"
)

const (
	lowConfidenceWarning   = 70
	missedMatchWarning     = 50
	budgetDeviationPercent = 20.0
)

// Findings are the human-readable conflict and warning strings surfaced on a
// preview. Conflicts block auto-approval; warnings do not.
type Findings struct {
	Conflicts []string
	Warnings  []string
}

// Detect derives conflicts and warnings from the match decisions and the
// extracted data. It never mutates its inputs.
func Detect(data domain.ExtractedData, customer CustomerOutcome, project ProjectOutcome) Findings {
	var f Findings
	f.detectCustomerConflicts(data.Customer, customer)
	f.detectProjectConflicts(data.Billing.Total, project)
	f.detectWarnings(data, customer, project)
	return f
}

func (f *Findings) detectCustomerConflicts(extracted domain.ExtractedCustomer, outcome CustomerOutcome) {
	if outcome.Match.Action != domain.ActionMerge || outcome.Matched == nil {
		return
	}
	existing := outcome.Matched

	if extracted.Email != "" && existing.Email != "" &&
		!strings.EqualFold(strings.TrimSpace(extracted.Email), strings.TrimSpace(existing.Email)) {
		f.Conflicts = append(f.Conflicts, fmt.Sprintf(
			"email mismatch with existing customer %q: document has %q, record has %q",
			existing.Name, extracted.Email, existing.Email))
	}

	docPhone := fuzz.NormalizePhone(extracted.Phone)
	recPhone := fuzz.NormalizePhone(existing.Phone)
	if docPhone != "" && recPhone != "" && docPhone != recPhone {
		f.Conflicts = append(f.Conflicts, fmt.Sprintf(
			"phone mismatch with existing customer %q: document has %q, record has %q",
			existing.Name, extracted.Phone, existing.Phone))
	}
}

func (f *Findings) detectProjectConflicts(documentTotal float64, outcome ProjectOutcome) {
	if outcome.Match.Action != domain.ActionUseExisting || outcome.Matched == nil {
		return
	}
	existing := outcome.Matched

	if existing.Status.Terminal() {
		f.Conflicts = append(f.Conflicts, fmt.Sprintf(
			"project %q has status %s and cannot receive new work", existing.Name, existing.Status))
	}

	if existing.Budget > 0 && documentTotal > 0 {
		deviation := math.Abs(documentTotal-existing.Budget) / existing.Budget * 100
		if deviation > budgetDeviationPercent {
			f.Conflicts = append(f.Conflicts, fmt.Sprintf(
				"document total %.2f deviates %.0f%% from project %q budget %.2f",
				documentTotal, deviation, existing.Name, existing.Budget))
		}
	}
}

func (f *Findings) detectWarnings(data domain.ExtractedData, customer CustomerOutcome, project ProjectOutcome) {
	if data.Confidence.Overall < lowConfidenceWarning {
		f.Warnings = append(f.Warnings, fmt.Sprintf(
			"low extraction confidence (%d%%), review all fields carefully", data.Confidence.Overall))
	}

	if strings.TrimSpace(data.Customer.Email) == "" && strings.TrimSpace(data.Customer.Phone) == "" {
		f.Warnings = append(f.Warnings, "customer has no email or phone contact method")
	}

	missing := 0
	for _, task := range data.Tasks {
		if task.EstimatedHours == 0 && task.ActualHours == 0 {
			missing++
		}
	}
	if missing > 0 {
		f.Warnings = append(f.Warnings, fmt.Sprintf("%d task(s) have no time estimate", missing))
	}

	if customer.Match.Action == domain.ActionCreateNew && customer.BestScore > missedMatchWarning {
		f.Warnings = append(f.Warnings, fmt.Sprintf(
			"creating a new customer although %q matched at %d%%", customer.BestName, customer.BestScore))
	}

	if project.SimilarName != "" {
		f.Warnings = append(f.Warnings, fmt.Sprintf(
			"a similar project %q exists (%d%% match); a new project will be created",
			project.SimilarName, project.BestScore))
	}
}
