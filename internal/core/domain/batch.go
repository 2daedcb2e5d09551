package domain

type PatternPriority string

const (
	PriorityCritical PatternPriority = "critical"
	PriorityHigh     PatternPriority = "high"
	PriorityMedium   PatternPriority = "medium"
	PriorityLow      PatternPriority = "low"
)

type PatternKind string

const (
	PatternDuplicateCustomer PatternKind = "duplicate_customer"
	PatternPossibleDuplicate PatternKind = "possible_duplicate"
	PatternBulkEstimates     PatternKind = "bulk_estimates"
	PatternRecurringProject  PatternKind = "recurring_project"
)

// Pattern is one detected cross-preview signal. Detection is read-only.
type Pattern struct {
	Kind        PatternKind     `json:"kind"`
	Priority    PatternPriority `json:"priority"`
	Description string          `json:"description"`
	PreviewIDs  []string        `json:"preview_ids"`
}

// BatchSummary aggregates the reviewable previews for one owner.
type BatchSummary struct {
	Total               int     `json:"total"`
	PendingReview       int     `json:"pending_review"`
	NeedsClarification  int     `json:"needs_clarification"`
	Invoices            int     `json:"invoices"`
	Estimates           int     `json:"estimates"`
	AverageConfidence   float64 `json:"average_confidence"`
	AutoApproveEligible int     `json:"auto_approve_eligible"`
	WithConflicts       int     `json:"with_conflicts"`
}

// BatchResult reports a bulk approve/reject outcome per preview.
type BatchResult struct {
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	Approved  []string `json:"approved,omitempty"`
	Rejected  []string `json:"rejected,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
}
