package domain

import "time"

// Domain-store entities. Their CRUD validation lives in the store itself;
// this subsystem only creates and queries them, owner-scoped.

type Customer struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// TerminalStatus reports whether the project can no longer receive work.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

type Project struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	CustomerID  string        `json:"customer_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	Budget      float64       `json:"budget,omitempty"`
	StartDate   string        `json:"start_date,omitempty"`
	EndDate     string        `json:"end_date,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type Task struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	EstimatedHours float64   `json:"estimated_hours,omitempty"`
	ActualHours    float64   `json:"actual_hours,omitempty"`
	HourlyRate     float64   `json:"hourly_rate,omitempty"`
	Amount         float64   `json:"amount,omitempty"`
	Category       string    `json:"category,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Invoice struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	CustomerID string    `json:"customer_id"`
	ProjectID  string    `json:"project_id"`
	Number     string    `json:"number"`
	IssueDate  string    `json:"issue_date,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	Subtotal   float64   `json:"subtotal"`
	TaxRate    float64   `json:"tax_rate"`
	TaxAmount  float64   `json:"tax_amount"`
	Total      float64   `json:"total"`
	Currency   string    `json:"currency,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Estimate struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	CustomerID string    `json:"customer_id"`
	ProjectID  string    `json:"project_id"`
	Number     string    `json:"number"`
	IssueDate  string    `json:"issue_date,omitempty"`
	ValidUntil string    `json:"valid_until,omitempty"`
	Subtotal   float64   `json:"subtotal"`
	TaxRate    float64   `json:"tax_rate"`
	TaxAmount  float64   `json:"tax_amount"`
	Total      float64   `json:"total"`
	Currency   string    `json:"currency,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskTemplate is a reusable task profile built up from approved tasks.
// Averages are running means weighted by parse confidence; WeightSum is the
// accumulated weight so the next sample can be folded in.
type TaskTemplate struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags,omitempty"`
	AvgHours   float64   `json:"avg_hours"`
	AvgAmount  float64   `json:"avg_amount"`
	WeightSum  float64   `json:"weight_sum"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
