package interfaces

import (
	"context"

	"github.com/ternarybob/speculor/internal/models"
)

// TaskListOptions filters task listings.
type TaskListOptions struct {
	Status models.TaskStatus
	Type   models.TaskType
	Limit  int
}

// TaskQueue is the worker's only view of the task store. Tasks are
// read in creation-time order; claiming a task is just a status update.
type TaskQueue interface {
	// SaveTask persists a new task (producers call this with status pending).
	SaveTask(ctx context.Context, task *models.AnalysisTask) error

	// GetOldestPending returns the oldest pending task by creation
	// time, or nil when the queue is empty.
	GetOldestPending(ctx context.Context) (*models.AnalysisTask, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, id string) (*models.AnalysisTask, error)

	// UpdateStatus advances a task's status. Backward transitions are
	// rejected; status is monotonic.
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error

	// UpdateResult patches the task's result fields, error message and
	// processing duration without touching status.
	UpdateResult(ctx context.Context, id string, result *models.TaskResult, errMsg string, durationSec float64) error

	// ListTasks returns tasks matching the options, newest first.
	ListTasks(ctx context.Context, opts *TaskListOptions) ([]*models.AnalysisTask, error)
}
