package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitionsAreForwardOnly(t *testing.T) {
	allowed := []struct {
		from TaskStatus
		to   TaskStatus
	}{
		{TaskStatusPending, TaskStatusProcessing},
		{TaskStatusPending, TaskStatusCompleted},
		{TaskStatusPending, TaskStatusError},
		{TaskStatusProcessing, TaskStatusCompleted},
		{TaskStatusProcessing, TaskStatusError},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	forbidden := []struct {
		from TaskStatus
		to   TaskStatus
	}{
		{TaskStatusProcessing, TaskStatusPending},
		{TaskStatusCompleted, TaskStatusProcessing},
		{TaskStatusCompleted, TaskStatusError},
		{TaskStatusError, TaskStatusCompleted},
		{TaskStatusError, TaskStatusPending},
		{TaskStatusPending, TaskStatusPending},
	}
	for _, tc := range forbidden {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s should be rejected", tc.from, tc.to)
	}
}

func TestNewAnalysisTaskIsPending(t *testing.T) {
	task := NewAnalysisTask(TaskTypeManual, "weekly commodities outlook")

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.False(t, task.IsTerminal())
	assert.NoError(t, task.Validate())
}

func TestValidateRejectsBadTasks(t *testing.T) {
	task := NewAnalysisTask(TaskTypeManual, "")
	assert.Error(t, task.Validate())

	task = NewAnalysisTask(TaskType("weekly"), "prompt")
	assert.Error(t, task.Validate())

	task = NewAnalysisTask(TaskTypeAutomatic, "prompt")
	task.ID = ""
	assert.Error(t, task.Validate())
}
