package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func statuses(ss ...TaskStatus) []*Task {
	tasks := make([]*Task, len(ss))
	for i, s := range ss {
		tasks[i] = &Task{Status: s}
	}
	return tasks
}

func TestDeriveWorkflowStatus(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*Task
		want  WorkflowStatus
	}{
		{"no tasks", nil, WorkflowStatusPending},
		{"all pending", statuses(TaskStatusPending, TaskStatusPending), WorkflowStatusPending},
		{"all completed", statuses(TaskStatusCompleted, TaskStatusCompleted), WorkflowStatusCompleted},
		{"mixed activity", statuses(TaskStatusCompleted, TaskStatusInProgress, TaskStatusPending), WorkflowStatusInProgress},
		{"waiting counts as in progress", statuses(TaskStatusCompleted, TaskStatusWaitingForApproval), WorkflowStatusInProgress},
		{"failed wins over everything", statuses(TaskStatusCompleted, TaskStatusFailed, TaskStatusInProgress), WorkflowStatusFailed},
		{"rejected counts as failed", statuses(TaskStatusCompleted, TaskStatusRejected), WorkflowStatusFailed},
		{"blocked counts as failed", statuses(TaskStatusPending, TaskStatusBlocked), WorkflowStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveWorkflowStatus(tt.tasks))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(TaskStatusWaitingForApproval, TaskStatusPending))
	assert.True(t, CanTransition(TaskStatusWaitingForApproval, TaskStatusRejected))
	assert.True(t, CanTransition(TaskStatusWaitingForApproval, TaskStatusWaitingForRevision))
	assert.True(t, CanTransition(TaskStatusRejected, TaskStatusPending))
	assert.True(t, CanTransition(TaskStatusFailed, TaskStatusPending))
	assert.True(t, CanTransition(TaskStatusPending, TaskStatusQueued))

	// Terminal states never move except via retry to pending.
	assert.False(t, CanTransition(TaskStatusCompleted, TaskStatusPending))
	assert.False(t, CanTransition(TaskStatusRejected, TaskStatusWaitingForApproval))
	assert.False(t, CanTransition(TaskStatusCompleted, TaskStatusInProgress))
	assert.False(t, CanTransition(TaskStatusPending, TaskStatusCompleted))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusRejected.IsTerminal())
	assert.False(t, TaskStatusBlocked.IsTerminal())
	assert.False(t, TaskStatusWaitingForApproval.IsTerminal())
	assert.False(t, TaskStatusFailed.IsTerminal())
}
