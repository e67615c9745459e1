package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// TaskStorage implements the TaskQueue interface on Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskQueue {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveTask(ctx context.Context, task *models.AnalysisTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetOldestPending returns the oldest pending task by creation time,
// or nil when nothing is pending.
func (s *TaskStorage) GetOldestPending(ctx context.Context) (*models.AnalysisTask, error) {
	var tasks []models.AnalysisTask
	query := badgerhold.Where("Status").Eq(models.TaskStatusPending).SortBy("CreatedAt").Limit(1)
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.AnalysisTask, error) {
	var task models.AnalysisTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// UpdateStatus advances the task status. A transition that would move
// the status backward is rejected; finalized tasks stay finalized.
func (s *TaskStorage) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	var task models.AnalysisTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("task not found: %s", id)
		}
		return fmt.Errorf("failed to get task: %w", err)
	}

	if !task.Status.CanTransition(status) {
		return fmt.Errorf("illegal status transition %s -> %s for task %s", task.Status, status, id)
	}

	now := time.Now()
	task.Status = status
	switch status {
	case models.TaskStatusProcessing:
		task.StartedAt = &now
	case models.TaskStatusCompleted, models.TaskStatusError:
		task.CompletedAt = &now
	}

	if err := s.db.Store().Update(id, &task); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// UpdateResult patches result fields without touching status.
func (s *TaskStorage) UpdateResult(ctx context.Context, id string, result *models.TaskResult, errMsg string, durationSec float64) error {
	var task models.AnalysisTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("task not found: %s", id)
		}
		return fmt.Errorf("failed to get task: %w", err)
	}

	if result != nil {
		task.Result = result
	}
	if errMsg != "" {
		task.Error = errMsg
	}
	if durationSec > 0 {
		task.DurationSec = durationSec
	}

	if err := s.db.Store().Update(id, &task); err != nil {
		return fmt.Errorf("failed to update task result: %w", err)
	}
	return nil
}

func (s *TaskStorage) ListTasks(ctx context.Context, opts *interfaces.TaskListOptions) ([]*models.AnalysisTask, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var tasks []models.AnalysisTask
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	result := make([]*models.AnalysisTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}
