package match

import (
	"strings"
	"testing"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

func baseData() domain.ExtractedData {
	return domain.ExtractedData{
		DocumentType: domain.DocumentTypeInvoice,
		Language:     "fr",
		Confidence:   domain.ConfidenceScores{Overall: 90, Customer: 90, Project: 90, Tasks: 90, Pricing: 90},
		Customer:     domain.ExtractedCustomer{Name: "Jean Dupont", Email: "jean@example.com"},
		Tasks:        []domain.ExtractedTask{{Name: "Pose carrelage", EstimatedHours: 8}},
		Billing:      domain.ExtractedBilling{Total: 1000},
	}
}

func TestDetectEmailMismatchOnMerge(t *testing.T) {
	data := baseData()
	customer := CustomerOutcome{
		Match:   domain.EntityMatch{Action: domain.ActionMerge, MatchedID: "c1", Confidence: 75},
		Matched: &domain.Customer{ID: "c1", Name: "Jean Dupont", Email: "dupont@other.com"},
	}

	f := Detect(data, customer, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	if len(f.Conflicts) != 1 || !strings.Contains(f.Conflicts[0], "email mismatch") {
		t.Fatalf("conflicts = %v, want one email mismatch", f.Conflicts)
	}
}

func TestDetectPhoneMismatchOnMerge(t *testing.T) {
	data := baseData()
	data.Customer.Phone = "+33 6 11 11 11 11"
	customer := CustomerOutcome{
		Match:   domain.EntityMatch{Action: domain.ActionMerge, MatchedID: "c1", Confidence: 75},
		Matched: &domain.Customer{ID: "c1", Name: "Jean Dupont", Email: "jean@example.com", Phone: "+33 6 22 22 22 22"},
	}

	f := Detect(data, customer, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	if len(f.Conflicts) != 1 || !strings.Contains(f.Conflicts[0], "phone mismatch") {
		t.Fatalf("conflicts = %v, want one phone mismatch", f.Conflicts)
	}
}

func TestDetectNoMismatchWhenUseExisting(t *testing.T) {
	data := baseData()
	customer := CustomerOutcome{
		Match:   domain.EntityMatch{Action: domain.ActionUseExisting, MatchedID: "c1", Confidence: 100},
		Matched: &domain.Customer{ID: "c1", Name: "Jean Dupont", Email: "dupont@other.com"},
	}

	f := Detect(data, customer, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	if len(f.Conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none for use_existing", f.Conflicts)
	}
}

func TestDetectTerminalProjectConflict(t *testing.T) {
	data := baseData()
	project := ProjectOutcome{
		Match:   domain.EntityMatch{Action: domain.ActionUseExisting, MatchedID: "p1", Confidence: 90, ShouldUpsert: true},
		Matched: &domain.Project{ID: "p1", Name: "Renovation cuisine", Status: domain.ProjectCompleted},
	}

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, project)
	found := false
	for _, c := range f.Conflicts {
		if strings.Contains(c, "completed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflicts = %v, want terminal project conflict", f.Conflicts)
	}
}

func TestDetectBudgetDeviationConflict(t *testing.T) {
	data := baseData()
	data.Billing.Total = 1500
	project := ProjectOutcome{
		Match:   domain.EntityMatch{Action: domain.ActionUseExisting, MatchedID: "p1", Confidence: 90, ShouldUpsert: true},
		Matched: &domain.Project{ID: "p1", Name: "Renovation cuisine", Status: domain.ProjectActive, Budget: 1000},
	}

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, project)
	found := false
	for _, c := range f.Conflicts {
		if strings.Contains(c, "deviates") {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflicts = %v, want budget deviation", f.Conflicts)
	}
}

func TestDetectBudgetWithinToleranceNoConflict(t *testing.T) {
	data := baseData()
	data.Billing.Total = 1100
	project := ProjectOutcome{
		Match:   domain.EntityMatch{Action: domain.ActionUseExisting, MatchedID: "p1", Confidence: 90, ShouldUpsert: true},
		Matched: &domain.Project{ID: "p1", Name: "Renovation cuisine", Status: domain.ProjectActive, Budget: 1000},
	}

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, project)
	if len(f.Conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none at 10%% deviation", f.Conflicts)
	}
}

func TestDetectLowConfidenceWarning(t *testing.T) {
	data := baseData()
	data.Confidence.Overall = 65

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "confidence") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want low confidence warning", f.Warnings)
	}
}

func TestDetectNoContactWarning(t *testing.T) {
	data := baseData()
	data.Customer.Email = ""
	data.Customer.Phone = ""

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "contact") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want missing contact warning", f.Warnings)
	}
}

func TestDetectMissingEstimatesWarning(t *testing.T) {
	data := baseData()
	data.Tasks = []domain.ExtractedTask{
		{Name: "Pose carrelage"},
		{Name: "Plomberie", EstimatedHours: 4},
		{Name: "Peinture"},
	}

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "2 task(s)") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want 2 tasks without estimates", f.Warnings)
	}
}

func TestDetectMissedFuzzyMatchWarning(t *testing.T) {
	data := baseData()
	customer := CustomerOutcome{
		Match:     domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: 0},
		BestScore: 62,
		BestName:  "Jean Dupond",
	}

	f := Detect(data, customer, ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}})
	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "Jean Dupond") && strings.Contains(w, "62%") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want missed-match warning", f.Warnings)
	}
}

func TestDetectSimilarProjectWarning(t *testing.T) {
	data := baseData()
	project := ProjectOutcome{
		Match:       domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: 75},
		SimilarName: "Creation site internet",
		BestScore:   75,
	}

	f := Detect(data, CustomerOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew}}, project)
	found := false
	for _, w := range f.Warnings {
		if strings.Contains(w, "Creation site internet") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want similar project warning", f.Warnings)
	}
}
