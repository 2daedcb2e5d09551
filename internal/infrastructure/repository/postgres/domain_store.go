package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

// DomainStore is the owner-scoped entity store the approval commit writes
// into. All methods respect an ambient transaction.
type DomainStore struct {
	db *sql.DB
}

func NewDomainStore(db *sql.DB) *DomainStore {
	return &DomainStore{db: db}
}

func (s *DomainStore) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx, `
SELECT id, owner_id, name, email, phone, company, address, created_at
FROM customers
WHERE owner_id = $1
ORDER BY created_at
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Address, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

func (s *DomainStore) GetCustomer(ctx context.Context, ownerID, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, owner_id, name, email, phone, company, address, created_at
FROM customers
WHERE owner_id = $1 AND id = $2
`, ownerID, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get customer", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}

func (s *DomainStore) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO customers (id, owner_id, name, email, phone, company, address, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, customer.ID, customer.OwnerID, customer.Name, customer.Email, customer.Phone, customer.Company, customer.Address, customer.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *DomainStore) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	res, err := conn(ctx, s.db).ExecContext(ctx, `
UPDATE customers
SET name = $3, email = $4, phone = $5, company = $6, address = $7
WHERE owner_id = $1 AND id = $2
`, customer.OwnerID, customer.ID, customer.Name, customer.Email, customer.Phone, customer.Company, customer.Address)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update customer", fmt.Errorf("id %s", customer.ID))
	}
	return nil
}

func (s *DomainStore) ListProjects(ctx context.Context, ownerID, customerID string) ([]domain.Project, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx, `
SELECT id, owner_id, customer_id, name, description, status, budget, start_date, end_date, created_at
FROM projects
WHERE owner_id = $1 AND customer_id = $2
ORDER BY created_at
`, ownerID, customerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func (s *DomainStore) GetProject(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, owner_id, customer_id, name, description, status, budget, start_date, end_date, created_at
FROM projects
WHERE owner_id = $1 AND id = $2
`, ownerID, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get project", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return p, nil
}

func (s *DomainStore) CreateProject(ctx context.Context, project *domain.Project) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO projects (id, owner_id, customer_id, name, description, status, budget, start_date, end_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, project.ID, project.OwnerID, project.CustomerID, project.Name, project.Description,
		string(project.Status), project.Budget, project.StartDate, project.EndDate, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *DomainStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	res, err := conn(ctx, s.db).ExecContext(ctx, `
UPDATE projects
SET name = $3, description = $4, status = $5, budget = $6, start_date = $7, end_date = $8
WHERE owner_id = $1 AND id = $2
`, project.OwnerID, project.ID, project.Name, project.Description, string(project.Status),
		project.Budget, project.StartDate, project.EndDate)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update project", fmt.Errorf("id %s", project.ID))
	}
	return nil
}

func (s *DomainStore) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx, `
SELECT id, project_id, name, description, estimated_hours, actual_hours, hourly_rate, amount, category, created_at
FROM tasks
WHERE project_id = $1
ORDER BY created_at
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.EstimatedHours,
			&t.ActualHours, &t.HourlyRate, &t.Amount, &t.Category, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (s *DomainStore) GetTask(ctx context.Context, projectID, id string) (*domain.Task, error) {
	var t domain.Task
	err := conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, project_id, name, description, estimated_hours, actual_hours, hourly_rate, amount, category, created_at
FROM tasks
WHERE project_id = $1 AND id = $2
`, projectID, id).Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.EstimatedHours,
		&t.ActualHours, &t.HourlyRate, &t.Amount, &t.Category, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get task", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func (s *DomainStore) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO tasks (id, project_id, name, description, estimated_hours, actual_hours, hourly_rate, amount, category, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, task.ID, task.ProjectID, task.Name, task.Description, task.EstimatedHours,
		task.ActualHours, task.HourlyRate, task.Amount, task.Category, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *DomainStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	res, err := conn(ctx, s.db).ExecContext(ctx, `
UPDATE tasks
SET name = $2, description = $3, estimated_hours = $4, actual_hours = $5, hourly_rate = $6, amount = $7, category = $8
WHERE id = $1
`, task.ID, task.Name, task.Description, task.EstimatedHours, task.ActualHours,
		task.HourlyRate, task.Amount, task.Category)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update task", fmt.Errorf("id %s", task.ID))
	}
	return nil
}

func (s *DomainStore) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO invoices (id, owner_id, customer_id, project_id, number, issue_date, due_date, subtotal, tax_rate, tax_amount, total, currency, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, invoice.ID, invoice.OwnerID, invoice.CustomerID, invoice.ProjectID, invoice.Number,
		invoice.IssueDate, invoice.DueDate, invoice.Subtotal, invoice.TaxRate, invoice.TaxAmount,
		invoice.Total, invoice.Currency, invoice.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (s *DomainStore) CreateEstimate(ctx context.Context, estimate *domain.Estimate) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO estimates (id, owner_id, customer_id, project_id, number, issue_date, valid_until, subtotal, tax_rate, tax_amount, total, currency, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, estimate.ID, estimate.OwnerID, estimate.CustomerID, estimate.ProjectID, estimate.Number,
		estimate.IssueDate, estimate.ValidUntil, estimate.Subtotal, estimate.TaxRate, estimate.TaxAmount,
		estimate.Total, estimate.Currency, estimate.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	return nil
}

func (s *DomainStore) InvoiceNumberExists(ctx context.Context, ownerID, number string) (bool, error) {
	return s.numberExists(ctx, "invoices", ownerID, number)
}

func (s *DomainStore) EstimateNumberExists(ctx context.Context, ownerID, number string) (bool, error) {
	return s.numberExists(ctx, "estimates", ownerID, number)
}

func (s *DomainStore) numberExists(ctx context.Context, table, ownerID, number string) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE owner_id = $1 AND number = $2)`,
		ownerID, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s number: %w", table, err)
	}
	return exists, nil
}

func (s *DomainStore) GetTaskTemplateByName(ctx context.Context, ownerID, name string) (*domain.TaskTemplate, error) {
	var tpl domain.TaskTemplate
	var tags []byte
	err := conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, owner_id, name, category, tags, avg_hours, avg_amount, weight_sum, usage_count, created_at, updated_at
FROM task_templates
WHERE owner_id = $1 AND name = $2
`, ownerID, name).Scan(&tpl.ID, &tpl.OwnerID, &tpl.Name, &tpl.Category, &tags,
		&tpl.AvgHours, &tpl.AvgAmount, &tpl.WeightSum, &tpl.UsageCount, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get task template", fmt.Errorf("name %q", name))
		}
		return nil, fmt.Errorf("scan task template: %w", err)
	}
	if err := json.Unmarshal(tags, &tpl.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal template tags: %w", err)
	}
	return &tpl, nil
}

func (s *DomainStore) CreateTaskTemplate(ctx context.Context, template *domain.TaskTemplate) error {
	tags, err := json.Marshal(template.Tags)
	if err != nil {
		return fmt.Errorf("marshal template tags: %w", err)
	}
	_, err = conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO task_templates (id, owner_id, name, category, tags, avg_hours, avg_amount, weight_sum, usage_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, template.ID, template.OwnerID, template.Name, template.Category, tags,
		template.AvgHours, template.AvgAmount, template.WeightSum, template.UsageCount,
		template.CreatedAt, template.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task template: %w", err)
	}
	return nil
}

func (s *DomainStore) UpdateTaskTemplate(ctx context.Context, template *domain.TaskTemplate) error {
	tags, err := json.Marshal(template.Tags)
	if err != nil {
		return fmt.Errorf("marshal template tags: %w", err)
	}
	res, err := conn(ctx, s.db).ExecContext(ctx, `
UPDATE task_templates
SET category = $3, tags = $4, avg_hours = $5, avg_amount = $6, weight_sum = $7, usage_count = $8, updated_at = $9
WHERE owner_id = $1 AND name = $2
`, template.OwnerID, template.Name, template.Category, tags, template.AvgHours,
		template.AvgAmount, template.WeightSum, template.UsageCount, template.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update task template", fmt.Errorf("name %q", template.Name))
	}
	return nil
}

func scanProject(scan func(dest ...any) error) (*domain.Project, error) {
	var p domain.Project
	var status string
	err := scan(&p.ID, &p.OwnerID, &p.CustomerID, &p.Name, &p.Description, &status,
		&p.Budget, &p.StartDate, &p.EndDate, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Status = domain.ProjectStatus(status)
	return &p, nil
}
