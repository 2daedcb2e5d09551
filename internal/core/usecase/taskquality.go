package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

// Heuristic band: below the floor the task is clearly poor, at or above the
// ceiling clearly good; only the band in between consults the AI boundary.
const (
	qualityFloor   = 40
	qualityCeiling = 70
)

// TaskQualityScorer rates how actionable a staged task is, 0-100. The first
// stage is deterministic and free; the AI stage only runs on inconclusive
// scores, and its failure falls back to the heuristic value.
type TaskQualityScorer struct {
	runner ports.PromptRunner
}

func NewTaskQualityScorer(runner ports.PromptRunner) *TaskQualityScorer {
	return &TaskQualityScorer{runner: runner}
}

// HeuristicScore rates a task from its own fields only.
func HeuristicScore(task domain.ExtractedTask) int {
	name := strings.TrimSpace(task.Name)
	if name == "" {
		return 0
	}

	score := 30
	words := len(strings.Fields(name))
	switch {
	case words >= 3:
		score += 25
	case words == 2:
		score += 15
	default:
		score += 5
	}
	if len(name) >= 12 {
		score += 10
	}
	if strings.TrimSpace(task.Description) != "" {
		score += 15
	}
	if task.EstimatedHours > 0 || task.ActualHours > 0 {
		score += 15
	}
	if task.Amount > 0 || task.HourlyRate > 0 {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

func (s *TaskQualityScorer) Score(ctx context.Context, task domain.ExtractedTask) int {
	heuristic := HeuristicScore(task)
	if heuristic < qualityFloor || heuristic >= qualityCeiling {
		return heuristic
	}
	if s == nil || s.runner == nil {
		return heuristic
	}

	aiScore, err := s.aiScore(ctx, task)
	if err != nil {
		return heuristic
	}
	return aiScore
}

// ScoreAll returns the average score over the staged tasks, 0 for none.
func (s *TaskQualityScorer) ScoreAll(ctx context.Context, tasks []domain.ExtractedTask) int {
	if len(tasks) == 0 {
		return 0
	}
	total := 0
	for _, task := range tasks {
		total += s.Score(ctx, task)
	}
	return total / len(tasks)
}

func (s *TaskQualityScorer) aiScore(ctx context.Context, task domain.ExtractedTask) (int, error) {
	prompt := fmt.Sprintf(
		`Rate how clear and actionable this task is for a work order, from 0 to 100.
Task name: %q
Description: %q
Respond with JSON: {"score": <integer>}`,
		task.Name, task.Description)

	resp, err := s.runner.GenerateJSON(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("quality prompt: %w", err)
	}

	var parsed struct {
		Score int `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &parsed); err != nil {
		return 0, fmt.Errorf("parse quality response: %w", err)
	}
	if parsed.Score < 0 || parsed.Score > 100 {
		return 0, fmt.Errorf("quality score out of range: %d", parsed.Score)
	}
	return parsed.Score, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
