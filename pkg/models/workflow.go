package models

import (
	"time"
)

// WorkflowStatus is the aggregate state of a workflow, always derived from
// its tasks rather than stored independently.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
)

// Workflow represents a goal-directed collection of dependent tasks.
type Workflow struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Goal           string    `json:"goal"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Status is filled with the derived aggregate state on reads.
	Status WorkflowStatus `json:"status,omitempty"`
}

// DeriveWorkflowStatus computes the aggregate workflow status from its tasks.
// Precedence: failed > in-progress > completed > pending. A rejected or
// blocked task counts as failed; any non-terminal activity keeps the workflow
// in progress. This is the single place the derivation rule lives.
func DeriveWorkflowStatus(tasks []*Task) WorkflowStatus {
	if len(tasks) == 0 {
		return WorkflowStatusPending
	}

	allPending := true
	allCompleted := true
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusFailed, TaskStatusRejected, TaskStatusBlocked:
			return WorkflowStatusFailed
		}
		if t.Status != TaskStatusPending {
			allPending = false
		}
		if t.Status != TaskStatusCompleted {
			allCompleted = false
		}
	}

	if allPending {
		return WorkflowStatusPending
	}
	if allCompleted {
		return WorkflowStatusCompleted
	}
	return WorkflowStatusInProgress
}
