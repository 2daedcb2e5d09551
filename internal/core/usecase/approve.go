package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

// ApprovalOrchestrator turns an approved preview into committed entities in a
// single transaction: customer, project, tasks, then the invoice or estimate.
// Any failure rolls everything back and reopens the preview for review.
type ApprovalOrchestrator struct {
	previews ports.PreviewRepository
	docs     ports.DocumentRepository
	store    ports.DomainStore
	tx       ports.Transactor
	logger   *slog.Logger
}

func NewApprovalOrchestrator(
	previews ports.PreviewRepository,
	docs ports.DocumentRepository,
	store ports.DomainStore,
	tx ports.Transactor,
	logger *slog.Logger,
) *ApprovalOrchestrator {
	return &ApprovalOrchestrator{
		previews: previews,
		docs:     docs,
		store:    store,
		tx:       tx,
		logger:   logger,
	}
}

func (uc *ApprovalOrchestrator) CommitApproval(ctx context.Context, previewID string) error {
	preview, err := uc.previews.GetByID(ctx, previewID)
	if err != nil {
		return err
	}
	if preview.Status != domain.PreviewApproved {
		return domain.WrapError(domain.ErrConflict, "commit approval",
			fmt.Errorf("preview %s is %s, not approved", previewID, preview.Status))
	}
	if preview.CreatedInvoiceID != "" || preview.CreatedEstimateID != "" {
		// Redelivery of an already-committed approval.
		return nil
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		customerID, err := uc.commitCustomer(ctx, preview)
		if err != nil {
			return fmt.Errorf("commit customer: %w", err)
		}

		projectID, err := uc.commitProject(ctx, preview, customerID)
		if err != nil {
			return fmt.Errorf("commit project: %w", err)
		}

		if err := uc.commitTasks(ctx, preview, projectID); err != nil {
			return fmt.Errorf("commit tasks: %w", err)
		}

		if err := uc.commitBilling(ctx, preview, customerID, projectID); err != nil {
			return fmt.Errorf("commit billing: %w", err)
		}

		preview.CreatedCustomerID = customerID
		preview.CreatedProjectID = projectID
		preview.UpdatedAt = time.Now().UTC()
		if err := uc.previews.Update(ctx, preview); err != nil {
			return fmt.Errorf("update preview: %w", err)
		}
		return uc.docs.UpdateStatus(ctx, preview.DocumentID, domain.StatusApproved, "")
	})
	if err != nil {
		uc.reopen(ctx, preview)
		return domain.WrapError(domain.ErrApprovalFailed, "commit approval", err)
	}

	uc.logger.Info("approval committed",
		slog.String("preview_id", preview.ID),
		slog.String("document_id", preview.DocumentID),
		slog.String("customer_id", preview.CreatedCustomerID),
		slog.String("project_id", preview.CreatedProjectID))
	return nil
}

// reopen puts the preview and document back into reviewable state after a
// failed commit. Best effort: the commit error is what the caller sees.
func (uc *ApprovalOrchestrator) reopen(ctx context.Context, preview *domain.Preview) {
	preview.Status = domain.PreviewPendingReview
	preview.ReviewedAt = nil
	// The rolled-back transaction destroyed whatever the commit steps created;
	// ids left over from the in-memory preview would make a retry look
	// already committed.
	preview.CreatedCustomerID = ""
	preview.CreatedProjectID = ""
	preview.CreatedInvoiceID = ""
	preview.CreatedEstimateID = ""
	preview.UpdatedAt = time.Now().UTC()
	if err := uc.previews.Update(ctx, preview); err != nil {
		uc.logger.Error("failed to reopen preview after commit failure",
			slog.String("preview_id", preview.ID), slog.String("error", err.Error()))
	}
	if err := uc.docs.UpdateStatus(ctx, preview.DocumentID, domain.StatusParsed, ""); err != nil {
		uc.logger.Error("failed to reset document after commit failure",
			slog.String("document_id", preview.DocumentID), slog.String("error", err.Error()))
	}
}

func (uc *ApprovalOrchestrator) commitCustomer(ctx context.Context, preview *domain.Preview) (string, error) {
	staged := preview.CustomerData
	match := preview.CustomerMatch

	switch match.Action {
	case domain.ActionUseExisting, domain.ActionMerge:
		existing, err := uc.store.GetCustomer(ctx, preview.OwnerID, match.MatchedID)
		if errors.Is(err, domain.ErrNotFound) {
			// Matched record was deleted since matching ran.
			break
		}
		if err != nil {
			return "", err
		}
		if match.Action == domain.ActionUseExisting {
			return existing.ID, nil
		}
		// Merge fills gaps, it never overwrites reviewed data on file.
		changed := false
		if existing.Email == "" && staged.Email != "" {
			existing.Email = staged.Email
			changed = true
		}
		if existing.Phone == "" && staged.Phone != "" {
			existing.Phone = staged.Phone
			changed = true
		}
		if existing.Company == "" && staged.Company != "" {
			existing.Company = staged.Company
			changed = true
		}
		if existing.Address == "" && staged.Address != "" {
			existing.Address = staged.Address
			changed = true
		}
		if changed {
			if err := uc.store.UpdateCustomer(ctx, existing); err != nil {
				return "", err
			}
		}
		return existing.ID, nil
	}

	name := strings.TrimSpace(staged.Name)
	if name == "" {
		name = strings.TrimSpace(staged.Company)
	}
	customer := &domain.Customer{
		ID:        uuid.NewString(),
		OwnerID:   preview.OwnerID,
		Name:      name,
		Email:     staged.Email,
		Phone:     staged.Phone,
		Company:   staged.Company,
		Address:   staged.Address,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.store.CreateCustomer(ctx, customer); err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (uc *ApprovalOrchestrator) commitProject(ctx context.Context, preview *domain.Preview, customerID string) (string, error) {
	staged := preview.ProjectData
	match := preview.ProjectMatch

	if match.Action == domain.ActionUseExisting {
		existing, err := uc.store.GetProject(ctx, preview.OwnerID, match.MatchedID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		if err == nil {
			if match.ShouldUpsert {
				changed := false
				if existing.Description == "" && staged.Description != "" {
					existing.Description = staged.Description
					changed = true
				}
				if existing.EndDate == "" && staged.EndDate != "" {
					existing.EndDate = staged.EndDate
					changed = true
				}
				if changed {
					if err := uc.store.UpdateProject(ctx, existing); err != nil {
						return "", err
					}
				}
			}
			return existing.ID, nil
		}
	}

	name := strings.TrimSpace(staged.Name)
	if name == "" {
		name = fmt.Sprintf("Projet %s", time.Now().UTC().Format("2006-01-02"))
	}
	project := &domain.Project{
		ID:          uuid.NewString(),
		OwnerID:     preview.OwnerID,
		CustomerID:  customerID,
		Name:        name,
		Description: staged.Description,
		Status:      domain.ProjectActive,
		Budget:      preview.BillingData.Total,
		StartDate:   staged.StartDate,
		EndDate:     staged.EndDate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.store.CreateProject(ctx, project); err != nil {
		return "", err
	}
	return project.ID, nil
}

func (uc *ApprovalOrchestrator) commitTasks(ctx context.Context, preview *domain.Preview, projectID string) error {
	for _, tm := range preview.TaskMatches {
		if tm.Index < 0 || tm.Index >= len(preview.TasksData) {
			continue
		}
		staged := preview.TasksData[tm.Index]

		switch tm.Action {
		case domain.ActionSkip:
			uc.logger.Info("skipping unusable task",
				slog.String("preview_id", preview.ID), slog.Int("index", tm.Index))
			continue

		case domain.ActionMerge:
			existing, err := uc.store.GetTask(ctx, projectID, tm.MatchedTaskID)
			if errors.Is(err, domain.ErrNotFound) {
				break // fall through to create
			}
			if err != nil {
				return err
			}
			// Work accumulates: hours and amounts are additive, the
			// description keeps whichever side says more.
			existing.EstimatedHours += staged.EstimatedHours
			existing.ActualHours += staged.ActualHours
			existing.Amount += staged.Amount
			if len(staged.Description) > len(existing.Description) {
				existing.Description = staged.Description
			}
			if err := uc.store.UpdateTask(ctx, existing); err != nil {
				return err
			}
			continue
		}

		task := &domain.Task{
			ID:             uuid.NewString(),
			ProjectID:      projectID,
			Name:           staged.Name,
			Description:    staged.Description,
			EstimatedHours: staged.EstimatedHours,
			ActualHours:    staged.ActualHours,
			HourlyRate:     staged.HourlyRate,
			Amount:         staged.Amount,
			Category:       categorizeTask(staged.Name, staged.Description),
			CreatedAt:      time.Now().UTC(),
		}
		if err := uc.store.CreateTask(ctx, task); err != nil {
			return err
		}
		if err := uc.upsertTaskTemplate(ctx, preview, staged, task.Category); err != nil {
			return err
		}
	}
	return nil
}

// upsertTaskTemplate folds the approved task into the owner's template for
// that task name. Averages are running means weighted by parse confidence so
// low-confidence extractions move the template less.
func (uc *ApprovalOrchestrator) upsertTaskTemplate(ctx context.Context, preview *domain.Preview, staged domain.ExtractedTask, category string) error {
	name := strings.TrimSpace(staged.Name)
	if name == "" {
		return nil
	}
	weight := float64(preview.ParseConfidence) / 100
	if weight <= 0 {
		weight = 0.01
	}
	hours := staged.EstimatedHours
	if hours == 0 {
		hours = staged.ActualHours
	}

	tpl, err := uc.store.GetTaskTemplateByName(ctx, preview.OwnerID, name)
	if errors.Is(err, domain.ErrNotFound) {
		now := time.Now().UTC()
		return uc.store.CreateTaskTemplate(ctx, &domain.TaskTemplate{
			ID:         uuid.NewString(),
			OwnerID:    preview.OwnerID,
			Name:       name,
			Category:   category,
			Tags:       taskTags(name, staged.Description),
			AvgHours:   hours,
			AvgAmount:  staged.Amount,
			WeightSum:  weight,
			UsageCount: 1,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err != nil {
		return err
	}

	total := tpl.WeightSum + weight
	tpl.AvgHours = (tpl.AvgHours*tpl.WeightSum + hours*weight) / total
	tpl.AvgAmount = (tpl.AvgAmount*tpl.WeightSum + staged.Amount*weight) / total
	tpl.WeightSum = total
	tpl.UsageCount++
	tpl.UpdatedAt = time.Now().UTC()
	return uc.store.UpdateTaskTemplate(ctx, tpl)
}

func (uc *ApprovalOrchestrator) commitBilling(ctx context.Context, preview *domain.Preview, customerID, projectID string) error {
	billing := preview.BillingData

	switch preview.DocumentType {
	case domain.DocumentTypeEstimate:
		number, err := uc.uniqueNumber(ctx, preview.OwnerID, billing.Number, "EST", uc.store.EstimateNumberExists)
		if err != nil {
			return err
		}
		estimate := &domain.Estimate{
			ID:         uuid.NewString(),
			OwnerID:    preview.OwnerID,
			CustomerID: customerID,
			ProjectID:  projectID,
			Number:     number,
			IssueDate:  billing.IssueDate,
			ValidUntil: billing.ValidUntil,
			Subtotal:   billing.Subtotal,
			TaxRate:    billing.TaxRate,
			TaxAmount:  billing.TaxAmount,
			Total:      billing.Total,
			Currency:   billing.Currency,
			CreatedAt:  time.Now().UTC(),
		}
		if err := uc.store.CreateEstimate(ctx, estimate); err != nil {
			return err
		}
		preview.CreatedEstimateID = estimate.ID
		return nil

	default:
		number, err := uc.uniqueNumber(ctx, preview.OwnerID, billing.Number, "INV", uc.store.InvoiceNumberExists)
		if err != nil {
			return err
		}
		invoice := &domain.Invoice{
			ID:         uuid.NewString(),
			OwnerID:    preview.OwnerID,
			CustomerID: customerID,
			ProjectID:  projectID,
			Number:     number,
			IssueDate:  billing.IssueDate,
			DueDate:    billing.DueDate,
			Subtotal:   billing.Subtotal,
			TaxRate:    billing.TaxRate,
			TaxAmount:  billing.TaxAmount,
			Total:      billing.Total,
			Currency:   billing.Currency,
			CreatedAt:  time.Now().UTC(),
		}
		if err := uc.store.CreateInvoice(ctx, invoice); err != nil {
			return err
		}
		preview.CreatedInvoiceID = invoice.ID
		return nil
	}
}

// uniqueNumber keeps the extracted number when it is free, otherwise suffixes
// -2, -3, ... until one is. Missing numbers get a dated fallback.
func (uc *ApprovalOrchestrator) uniqueNumber(
	ctx context.Context,
	ownerID, extracted, prefix string,
	exists func(context.Context, string, string) (bool, error),
) (string, error) {
	base := strings.TrimSpace(extracted)
	if base == "" {
		base = fmt.Sprintf("%s-%s-001", prefix, time.Now().UTC().Format("20060102"))
	}

	candidate := base
	for suffix := 2; ; suffix++ {
		taken, err := exists(ctx, ownerID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

var taskCategories = []struct {
	name     string
	keywords []string
}{
	{"development", []string{"site", "web", "api", "application", "logiciel", "integration", "developpement", "backend", "frontend"}},
	{"design", []string{"design", "maquette", "logo", "graphique", "ux", "ui"}},
	{"construction", []string{"peinture", "plomberie", "electricite", "renovation", "maconnerie", "toiture", "carrelage", "isolation"}},
	{"consulting", []string{"audit", "conseil", "formation", "accompagnement", "etude"}},
	{"maintenance", []string{"maintenance", "entretien", "reparation", "support", "depannage"}},
}

func categorizeTask(name, description string) string {
	haystack := strings.ToLower(name + " " + description)
	for _, cat := range taskCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(haystack, kw) {
				return cat.name
			}
		}
	}
	return "general"
}

func taskTags(name, description string) []string {
	haystack := strings.ToLower(name + " " + description)
	var tags []string
	for _, cat := range taskCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(haystack, kw) {
				tags = append(tags, kw)
			}
		}
	}
	return tags
}
