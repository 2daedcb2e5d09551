// Package match resolves extracted customer/project/task fields against the
// existing domain store. All decisions are deterministic: candidates are
// scanned in first-seen order and a later candidate only wins with a strictly
// better score.
package match

import (
	"math"
	"strings"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/fuzz"
)

const (
	customerUseExistingThreshold = 85
	customerMergeThreshold       = 70

	projectUseExistingThreshold = 80
	projectWarningThreshold     = 60

	taskMergeThreshold = 80
)

// CustomerOutcome carries the match decision plus the best fuzzy candidate,
// which the conflict detector needs even when the decision is create_new.
type CustomerOutcome struct {
	Match     domain.EntityMatch
	Matched   *domain.Customer
	BestScore int
	BestName  string
}

// Customer resolves an extracted customer against the owner's existing
// customers. Exact identifiers win over fuzzy similarity, in strict
// precedence: email, normalized phone, name+company, bare name.
func Customer(extracted domain.ExtractedCustomer, existing []domain.Customer) CustomerOutcome {
	if c := matchByEmail(extracted, existing); c != nil {
		return useExisting(c, 100)
	}
	if c := matchByPhone(extracted, existing); c != nil {
		return useExisting(c, 95)
	}
	if c := matchByNameCompany(extracted, existing); c != nil {
		return useExisting(c, 90)
	}
	if c := matchByBareName(extracted, existing); c != nil {
		return useExisting(c, 85)
	}
	return matchFuzzy(extracted, existing)
}

func useExisting(c *domain.Customer, confidence int) CustomerOutcome {
	return CustomerOutcome{
		Match: domain.EntityMatch{
			Action:      domain.ActionUseExisting,
			MatchedID:   c.ID,
			MatchedName: c.Name,
			Confidence:  confidence,
		},
		Matched:   c,
		BestScore: confidence,
		BestName:  c.Name,
	}
}

func matchByEmail(extracted domain.ExtractedCustomer, existing []domain.Customer) *domain.Customer {
	email := strings.ToLower(strings.TrimSpace(extracted.Email))
	if email == "" {
		return nil
	}
	for i := range existing {
		if strings.ToLower(strings.TrimSpace(existing[i].Email)) == email {
			return &existing[i]
		}
	}
	return nil
}

func matchByPhone(extracted domain.ExtractedCustomer, existing []domain.Customer) *domain.Customer {
	phone := fuzz.NormalizePhone(extracted.Phone)
	if phone == "" {
		return nil
	}
	for i := range existing {
		if candidate := fuzz.NormalizePhone(existing[i].Phone); candidate != "" && candidate == phone {
			return &existing[i]
		}
	}
	return nil
}

func matchByNameCompany(extracted domain.ExtractedCustomer, existing []domain.Customer) *domain.Customer {
	name := foldField(extracted.Name)
	company := foldField(extracted.Company)
	if name == "" || company == "" {
		return nil
	}
	for i := range existing {
		if foldField(existing[i].Name) == name && foldField(existing[i].Company) == company {
			return &existing[i]
		}
	}
	return nil
}

func matchByBareName(extracted domain.ExtractedCustomer, existing []domain.Customer) *domain.Customer {
	name := foldField(extracted.Name)
	if name == "" || foldField(extracted.Company) != "" {
		return nil
	}
	for i := range existing {
		if foldField(existing[i].Company) != "" {
			continue
		}
		if foldField(existing[i].Name) == name {
			return &existing[i]
		}
	}
	return nil
}

// matchFuzzy computes the weighted similarity over every candidate. A term
// contributes only when both sides carry the field; the final score is
// normalized by the weights actually used.
func matchFuzzy(extracted domain.ExtractedCustomer, existing []domain.Customer) CustomerOutcome {
	var (
		best      *domain.Customer
		bestScore = -1
	)
	for i := range existing {
		score, scored := fuzzyScore(extracted, &existing[i])
		if !scored {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = &existing[i]
		}
	}

	if best == nil || bestScore < customerMergeThreshold {
		out := CustomerOutcome{
			Match: domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: 0},
		}
		if best != nil {
			out.BestScore = bestScore
			out.BestName = best.Name
		}
		return out
	}

	action := domain.ActionMerge
	if bestScore >= customerUseExistingThreshold {
		action = domain.ActionUseExisting
	}
	return CustomerOutcome{
		Match: domain.EntityMatch{
			Action:      action,
			MatchedID:   best.ID,
			MatchedName: best.Name,
			Confidence:  bestScore,
		},
		Matched:   best,
		BestScore: bestScore,
		BestName:  best.Name,
	}
}

func fuzzyScore(extracted domain.ExtractedCustomer, candidate *domain.Customer) (int, bool) {
	type term struct {
		weight float64
		score  int
		use    bool
	}
	terms := []term{
		{0.4, fuzz.Ratio(extracted.Name, candidate.Name), bothPresent(extracted.Name, candidate.Name)},
		{0.2, fuzz.Ratio(extracted.Company, candidate.Company), bothPresent(extracted.Company, candidate.Company)},
		{0.3, fuzz.TokenSetRatio(extracted.Address, candidate.Address), bothPresent(extracted.Address, candidate.Address)},
		{0.1, fuzz.Ratio(extracted.Phone, candidate.Phone), bothPresent(extracted.Phone, candidate.Phone)},
	}

	var weighted, totalWeight float64
	for _, t := range terms {
		if !t.use {
			continue
		}
		weighted += t.weight * float64(t.score)
		totalWeight += t.weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return int(math.Round(weighted / totalWeight)), true
}

// ProjectOutcome carries the project decision plus the name of a similar
// project when similarity lands in the warning band.
type ProjectOutcome struct {
	Match       domain.EntityMatch
	Matched     *domain.Project
	SimilarName string
	BestScore   int
}

// Project resolves an extracted project against the matched customer's
// projects using the best of the three name-similarity strategies.
func Project(extracted domain.ExtractedProject, existing []domain.Project) ProjectOutcome {
	if strings.TrimSpace(extracted.Name) == "" {
		return ProjectOutcome{Match: domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: 0}}
	}

	var (
		best      *domain.Project
		bestScore = -1
	)
	for i := range existing {
		score := nameSimilarity(extracted.Name, existing[i].Name)
		if score > bestScore {
			bestScore = score
			best = &existing[i]
		}
	}

	switch {
	case best != nil && bestScore >= projectUseExistingThreshold:
		return ProjectOutcome{
			Match: domain.EntityMatch{
				Action:       domain.ActionUseExisting,
				MatchedID:    best.ID,
				MatchedName:  best.Name,
				Confidence:   bestScore,
				ShouldUpsert: true,
			},
			Matched:   best,
			BestScore: bestScore,
		}
	case best != nil && bestScore >= projectWarningThreshold:
		return ProjectOutcome{
			Match:       domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: bestScore},
			SimilarName: best.Name,
			BestScore:   bestScore,
		}
	default:
		out := ProjectOutcome{
			Match: domain.EntityMatch{Action: domain.ActionCreateNew, Confidence: 0},
		}
		if best != nil {
			out.BestScore = bestScore
		}
		return out
	}
}

// Tasks decides merge/create/skip for each staged task against the resolved
// project's existing tasks. Hours and amounts merge additively downstream;
// here we only pick the counterpart.
func Tasks(extracted []domain.ExtractedTask, existing []domain.Task) []domain.TaskMatch {
	matches := make([]domain.TaskMatch, 0, len(extracted))
	for idx, task := range extracted {
		if strings.TrimSpace(task.Name) == "" {
			matches = append(matches, domain.TaskMatch{Index: idx, Action: domain.ActionSkip})
			continue
		}

		var (
			best      *domain.Task
			bestScore = -1
		)
		for i := range existing {
			score := nameSimilarity(task.Name, existing[i].Name)
			if score > bestScore {
				bestScore = score
				best = &existing[i]
			}
		}

		if best != nil && bestScore >= taskMergeThreshold {
			matches = append(matches, domain.TaskMatch{
				Index:         idx,
				Action:        domain.ActionMerge,
				MatchedTaskID: best.ID,
				Confidence:    bestScore,
			})
			continue
		}
		matches = append(matches, domain.TaskMatch{Index: idx, Action: domain.ActionCreateNew})
	}
	return matches
}

func nameSimilarity(a, b string) int {
	best := fuzz.Ratio(a, b)
	if s := fuzz.TokenSortRatio(a, b); s > best {
		best = s
	}
	if s := fuzz.PartialRatio(a, b); s > best {
		best = s
	}
	return best
}

func bothPresent(a, b string) bool {
	return strings.TrimSpace(a) != "" && strings.TrimSpace(b) != ""
}

func foldField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
