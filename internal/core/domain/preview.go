package domain

import "time"

type PreviewStatus string

const (
	PreviewPendingReview      PreviewStatus = "pending_review"
	PreviewNeedsClarification PreviewStatus = "needs_clarification"
	PreviewApproved           PreviewStatus = "approved"
	PreviewRejected           PreviewStatus = "rejected"
)

// Terminal reports whether no further status transition is allowed.
func (s PreviewStatus) Terminal() bool {
	return s == PreviewApproved || s == PreviewRejected
}

type MatchAction string

const (
	ActionCreateNew   MatchAction = "create_new"
	ActionUseExisting MatchAction = "use_existing"
	ActionMerge       MatchAction = "merge"
	ActionSkip        MatchAction = "skip"
)

// EntityMatch is the matcher's decision for a customer or project.
// MatchedID is a weak reference into the domain store; it carries no
// ownership and may point at a record deleted since matching ran.
type EntityMatch struct {
	Action       MatchAction `json:"action"`
	MatchedID    string      `json:"matched_id,omitempty"`
	MatchedName  string      `json:"matched_name,omitempty"`
	Confidence   int         `json:"confidence"`
	ShouldUpsert bool        `json:"should_upsert,omitempty"`
}

// TaskMatch is the per-task decision, indexed into the staged task list.
type TaskMatch struct {
	Index         int         `json:"index"`
	Action        MatchAction `json:"action"`
	MatchedTaskID string      `json:"matched_task_id,omitempty"`
	Confidence    int         `json:"confidence"`
}

// Preview is the mutable, human-reviewable staging record between extraction
// and committed domain entities. Exactly one exists per document.
type Preview struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	ParseResultID string        `json:"parse_result_id"`
	OwnerID       string        `json:"owner_id"`
	DocumentType  DocumentType  `json:"document_type"`
	Status        PreviewStatus `json:"status"`

	CustomerData ExtractedCustomer `json:"customer_data"`
	ProjectData  ExtractedProject  `json:"project_data"`
	TasksData    []ExtractedTask   `json:"tasks_data"`
	BillingData  ExtractedBilling  `json:"billing_data"`

	CustomerMatch EntityMatch `json:"customer_match"`
	ProjectMatch  EntityMatch `json:"project_match"`
	TaskMatches   []TaskMatch `json:"task_matches,omitempty"`

	Conflicts []string `json:"conflicts,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`

	ParseConfidence     int    `json:"parse_confidence"`
	AutoApproveEligible bool   `json:"auto_approve_eligible"`
	WasEdited           bool   `json:"was_edited"`
	ModelVersion        string `json:"model_version,omitempty"`

	CreatedCustomerID string `json:"created_customer_id,omitempty"`
	CreatedProjectID  string `json:"created_project_id,omitempty"`
	CreatedInvoiceID  string `json:"created_invoice_id,omitempty"`
	CreatedEstimateID string `json:"created_estimate_id,omitempty"`

	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
