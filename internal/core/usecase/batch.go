package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/fuzz"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

const (
	// Required quality / confidence floors for unattended approval.
	autoApproveQualityFloor      = 80
	defaultAutoApproveConfidence = 90

	// Pattern detection floors.
	duplicateCustomerMin = 2
	bulkEstimatesMin     = 5
	recurringProjectMin  = 3
	duplicateTotalDelta  = 0.01
)

// BatchUseCase is the cross-preview surface: summary, pattern detection, and
// bulk review actions over one owner's reviewable previews.
type BatchUseCase struct {
	previews ports.PreviewRepository
	preview  ports.PreviewService
	quality  *TaskQualityScorer
	logger   *slog.Logger
}

func NewBatchUseCase(
	previews ports.PreviewRepository,
	preview ports.PreviewService,
	quality *TaskQualityScorer,
	logger *slog.Logger,
) *BatchUseCase {
	return &BatchUseCase{
		previews: previews,
		preview:  preview,
		quality:  quality,
		logger:   logger,
	}
}

func (uc *BatchUseCase) Summary(ctx context.Context, ownerID string) (*domain.BatchSummary, error) {
	reviewable, err := uc.previews.ListReviewable(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summary := &domain.BatchSummary{Total: len(reviewable)}
	confidenceSum := 0
	for _, p := range reviewable {
		switch p.Status {
		case domain.PreviewPendingReview:
			summary.PendingReview++
		case domain.PreviewNeedsClarification:
			summary.NeedsClarification++
		}
		switch p.DocumentType {
		case domain.DocumentTypeInvoice:
			summary.Invoices++
		case domain.DocumentTypeEstimate:
			summary.Estimates++
		}
		if p.AutoApproveEligible {
			summary.AutoApproveEligible++
		}
		if len(p.Conflicts) > 0 {
			summary.WithConflicts++
		}
		confidenceSum += p.ParseConfidence
	}
	if len(reviewable) > 0 {
		summary.AverageConfidence = math.Round(float64(confidenceSum)/float64(len(reviewable))*10) / 10
	}
	return summary, nil
}

// Patterns detects cross-preview signals in the reviewable set, highest
// priority first. Detection is read-only.
func (uc *BatchUseCase) Patterns(ctx context.Context, ownerID string) ([]domain.Pattern, error) {
	reviewable, err := uc.previews.ListReviewable(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var patterns []domain.Pattern
	patterns = append(patterns, detectPossibleDuplicates(reviewable)...)
	patterns = append(patterns, detectDuplicateCustomers(reviewable)...)
	patterns = append(patterns, detectBulkEstimates(reviewable)...)
	patterns = append(patterns, detectRecurringProjects(reviewable)...)

	sort.SliceStable(patterns, func(i, j int) bool {
		return priorityRank(patterns[i].Priority) < priorityRank(patterns[j].Priority)
	})
	return patterns, nil
}

func (uc *BatchUseCase) BulkApprove(ctx context.Context, ownerID, userID string, previewIDs []string) (*domain.BatchResult, error) {
	result := &domain.BatchResult{Requested: len(previewIDs)}
	for _, id := range previewIDs {
		if _, err := uc.preview.Approve(ctx, id, userID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Succeeded++
		result.Approved = append(result.Approved, id)
	}
	uc.logger.Info("bulk approve finished",
		slog.String("owner_id", ownerID),
		slog.Int("requested", result.Requested),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

func (uc *BatchUseCase) BulkReject(ctx context.Context, ownerID, userID string, previewIDs []string) (*domain.BatchResult, error) {
	result := &domain.BatchResult{Requested: len(previewIDs)}
	for _, id := range previewIDs {
		if _, err := uc.preview.Reject(ctx, id, userID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Succeeded++
		result.Rejected = append(result.Rejected, id)
	}
	uc.logger.Info("bulk reject finished",
		slog.String("owner_id", ownerID),
		slog.Int("requested", result.Requested),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

// AutoApproveSafe approves only previews that cleared matching untouched:
// eligible, conflict-free, confident enough, and with tasks the quality
// cascade rates acceptable. Everything else is skipped, never failed.
func (uc *BatchUseCase) AutoApproveSafe(ctx context.Context, ownerID, userID string, threshold int) (*domain.BatchResult, error) {
	if threshold <= 0 {
		threshold = defaultAutoApproveConfidence
	}
	reviewable, err := uc.previews.ListReviewable(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{Requested: len(reviewable)}
	for _, p := range reviewable {
		if !p.AutoApproveEligible || len(p.Conflicts) > 0 || p.ParseConfidence < threshold {
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}
		if uc.quality.ScoreAll(ctx, p.TasksData) < autoApproveQualityFloor {
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}
		if _, err := uc.preview.Approve(ctx, p.ID, userID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		result.Succeeded++
		result.Approved = append(result.Approved, p.ID)
	}

	uc.logger.Info("auto-approve finished",
		slog.String("owner_id", ownerID),
		slog.Int("threshold", threshold),
		slog.Int("approved", result.Succeeded),
		slog.Int("skipped", len(result.Skipped)))
	return result, nil
}

// detectPossibleDuplicates flags pairs of same-type previews whose totals are
// within 1% of each other and whose customer names overlap. Those are likely
// the same source document uploaded twice.
func detectPossibleDuplicates(previews []domain.Preview) []domain.Pattern {
	var patterns []domain.Pattern
	for i := 0; i < len(previews); i++ {
		for j := i + 1; j < len(previews); j++ {
			a, b := previews[i], previews[j]
			if a.DocumentType != b.DocumentType {
				continue
			}
			if !totalsClose(a.BillingData.Total, b.BillingData.Total) {
				continue
			}
			if !namesOverlap(customerLabel(a), customerLabel(b)) {
				continue
			}
			patterns = append(patterns, domain.Pattern{
				Kind:     domain.PatternPossibleDuplicate,
				Priority: domain.PriorityCritical,
				Description: fmt.Sprintf("two %ss for %q with near-identical totals (%.2f / %.2f)",
					a.DocumentType, customerLabel(a), a.BillingData.Total, b.BillingData.Total),
				PreviewIDs: []string{a.ID, b.ID},
			})
		}
	}
	return patterns
}

func detectDuplicateCustomers(previews []domain.Preview) []domain.Pattern {
	groups := map[string][]string{}
	labels := map[string]string{}
	for _, p := range previews {
		if p.CustomerMatch.Action != domain.ActionCreateNew {
			continue
		}
		label := customerLabel(p)
		key := normalizeLabel(label)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], p.ID)
		labels[key] = label
	}

	var patterns []domain.Pattern
	for key, ids := range groups {
		if len(ids) < duplicateCustomerMin {
			continue
		}
		patterns = append(patterns, domain.Pattern{
			Kind:     domain.PatternDuplicateCustomer,
			Priority: domain.PriorityHigh,
			Description: fmt.Sprintf("%d previews would each create a new customer %q",
				len(ids), labels[key]),
			PreviewIDs: ids,
		})
	}
	sortPatternsByFirstID(patterns)
	return patterns
}

func detectBulkEstimates(previews []domain.Preview) []domain.Pattern {
	var ids []string
	for _, p := range previews {
		if p.DocumentType == domain.DocumentTypeEstimate {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) < bulkEstimatesMin {
		return nil
	}
	return []domain.Pattern{{
		Kind:        domain.PatternBulkEstimates,
		Priority:    domain.PriorityMedium,
		Description: fmt.Sprintf("%d estimates awaiting review, consider a bulk pass", len(ids)),
		PreviewIDs:  ids,
	}}
}

func detectRecurringProjects(previews []domain.Preview) []domain.Pattern {
	groups := map[string][]string{}
	labels := map[string]string{}
	for _, p := range previews {
		key := normalizeLabel(p.ProjectData.Name)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], p.ID)
		labels[key] = p.ProjectData.Name
	}

	var patterns []domain.Pattern
	for key, ids := range groups {
		if len(ids) < recurringProjectMin {
			continue
		}
		patterns = append(patterns, domain.Pattern{
			Kind:     domain.PatternRecurringProject,
			Priority: domain.PriorityLow,
			Description: fmt.Sprintf("%d previews reference the same project %q",
				len(ids), labels[key]),
			PreviewIDs: ids,
		})
	}
	sortPatternsByFirstID(patterns)
	return patterns
}

func priorityRank(p domain.PatternPriority) int {
	switch p {
	case domain.PriorityCritical:
		return 0
	case domain.PriorityHigh:
		return 1
	case domain.PriorityMedium:
		return 2
	default:
		return 3
	}
}

func sortPatternsByFirstID(patterns []domain.Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].PreviewIDs[0] < patterns[j].PreviewIDs[0]
	})
}

func totalsClose(a, b float64) bool {
	if a == 0 && b == 0 {
		return true
	}
	larger := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= larger*duplicateTotalDelta
}

func customerLabel(p domain.Preview) string {
	if name := strings.TrimSpace(p.CustomerData.Name); name != "" {
		return name
	}
	return strings.TrimSpace(p.CustomerData.Company)
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func namesOverlap(a, b string) bool {
	na, nb := normalizeLabel(a), normalizeLabel(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) ||
		fuzz.TokenSetRatio(na, nb) >= 90
}
