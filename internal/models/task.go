// -----------------------------------------------------------------------
// Analysis Task - One requested market report moving through the pipeline
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an analysis task.
// Transitions are monotonic: pending -> processing -> completed|error.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// TaskType classifies how a task was produced.
type TaskType string

const (
	TaskTypeAutomatic     TaskType = "automatic"
	TaskTypeManual        TaskType = "manual"
	TaskTypeMonthly       TaskType = "monthly"
	TaskTypePriceEstimate TaskType = "price_estimate"
)

// statusRank orders statuses for the monotonic-transition guard.
var statusRank = map[TaskStatus]int{
	TaskStatusPending:    0,
	TaskStatusProcessing: 1,
	TaskStatusCompleted:  2,
	TaskStatusError:      2,
}

// CanTransition reports whether moving from to next is a legal,
// forward-only status change.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// TaskResult holds the structured report produced for a task.
type TaskResult struct {
	ExecutiveSummary []string               `json:"executive_summary"`
	Summary          string                 `json:"summary"`
	KeyPoints        []string               `json:"key_points"`
	StructuredData   map[string]interface{} `json:"structured_data"`
	Insights         []string               `json:"insights"`
	Risks            []string               `json:"risks"`
	Opportunities    []string               `json:"opportunities"`
	Sources          []string               `json:"sources"`
	Confidence       float64                `json:"confidence_score"`
	EstimatedPrice   float64                `json:"estimated_price,omitempty"`
	Aberrant         bool                   `json:"aberrant,omitempty"`
}

// AnalysisTask represents one requested market report.
// An external producer creates it pending; the worker claims it,
// runs the pipeline, and finalizes it exactly once.
type AnalysisTask struct {
	ID          string      `json:"id" badgerhold:"key"`
	Type        TaskType    `json:"type"`
	Prompt      string      `json:"prompt"`
	Status      TaskStatus  `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	DurationSec float64     `json:"duration_seconds,omitempty"`
}

// NewAnalysisTask creates a pending task ready for the queue.
func NewAnalysisTask(taskType TaskType, prompt string) *AnalysisTask {
	return &AnalysisTask{
		ID:        uuid.New().String(),
		Type:      taskType,
		Prompt:    prompt,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

// Validate checks the task invariants before it is enqueued.
func (t *AnalysisTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if t.Prompt == "" {
		return fmt.Errorf("task prompt is required")
	}
	switch t.Type {
	case TaskTypeAutomatic, TaskTypeManual, TaskTypeMonthly, TaskTypePriceEstimate:
	default:
		return fmt.Errorf("invalid task type: %s", t.Type)
	}
	return nil
}

// IsTerminal reports whether the task has been finalized.
func (t *AnalysisTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusError
}
