// Package models defines the domain models for the orchestration service
package models

import (
	"time"
)

// TaskStatus represents the execution state of a task
type TaskStatus string

const (
	TaskStatusPending            TaskStatus = "pending"
	TaskStatusQueued             TaskStatus = "queued"
	TaskStatusInProgress         TaskStatus = "in_progress"
	TaskStatusWaitingForApproval TaskStatus = "waiting_for_approval"
	TaskStatusWaitingForRevision TaskStatus = "waiting_for_revision"
	TaskStatusCompleted          TaskStatus = "completed"
	TaskStatusRejected           TaskStatus = "rejected"
	TaskStatusBlocked            TaskStatus = "blocked"
	TaskStatusFailed             TaskStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state. Terminal tasks
// only leave their state through an explicit retry.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusRejected
}

// allowedTransitions is the task state machine. Keys are the current status,
// values the set of statuses directly reachable from it.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:            {TaskStatusQueued, TaskStatusBlocked},
	TaskStatusQueued:             {TaskStatusInProgress, TaskStatusFailed},
	TaskStatusInProgress:         {TaskStatusWaitingForApproval, TaskStatusCompleted, TaskStatusFailed},
	TaskStatusWaitingForApproval: {TaskStatusPending, TaskStatusRejected, TaskStatusWaitingForRevision},
	TaskStatusWaitingForRevision: {TaskStatusPending},
	TaskStatusRejected:           {TaskStatusPending},
	TaskStatusFailed:             {TaskStatusPending},
	TaskStatusBlocked:            {TaskStatusPending},
}

// CanTransition reports whether the state machine permits a direct move from
// one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DecisionAction represents the action recorded in an approval decision
type DecisionAction string

const (
	DecisionApprove         DecisionAction = "approve"
	DecisionReject          DecisionAction = "reject"
	DecisionRequestRevision DecisionAction = "request_revision"
)

// Task represents a single unit of work within a workflow.
type Task struct {
	ID         string     `json:"id" db:"id"`
	WorkflowID string     `json:"workflow_id" db:"workflow_id"`
	Agent      string     `json:"agent" db:"agent"`
	Status     TaskStatus `json:"status" db:"status"`

	// Dependencies holds the ids of tasks in the same workflow that must be
	// completed before this task may run.
	Dependencies []string `json:"dependencies,omitempty"`

	Input  map[string]interface{} `json:"input,omitempty" db:"input"`
	Output map[string]interface{} `json:"output,omitempty" db:"output"`

	ApprovalRequestedAt *time.Time `json:"approval_requested_at,omitempty" db:"approval_requested_at"`
	ApprovalDeadline    *time.Time `json:"approval_deadline,omitempty" db:"approval_deadline"`

	// Calendar projection fields, read by an external collaborator.
	ScheduledDate *time.Time `json:"scheduled_date,omitempty" db:"scheduled_date"`
	DueDate       *time.Time `json:"due_date,omitempty" db:"due_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Dependency is one edge of the workflow's task dependency graph.
type Dependency struct {
	TaskID          string `json:"task_id" db:"task_id"`
	DependsOnTaskID string `json:"depends_on_task_id" db:"depends_on_task_id"`
}

// ApprovalDecision records one actor's decision on one task. At most one row
// exists per (task, actor); resubmission overwrites it.
type ApprovalDecision struct {
	TaskID    string         `json:"task_id" db:"task_id"`
	ActorID   string         `json:"actor_id" db:"actor_id"`
	Action    DecisionAction `json:"action" db:"action"`
	Comment   string         `json:"comment,omitempty" db:"comment"`
	DecidedAt time.Time      `json:"decided_at" db:"decided_at"`
}

// SLAStatus classifies how long a task has been waiting for approval
type SLAStatus string

const (
	SLAOnTrack SLAStatus = "on_track"
	SLAUrgent  SLAStatus = "urgent"
	SLAOverdue SLAStatus = "overdue"
)

/// PendingApproval is one row of the pending-approvals listing: the waiting
// task plus its workflow context and read-side SLA classification.
type PendingApproval struct {
	Task         *Task     `json:"task"`
	WorkflowGoal string    `json:"workflow_goal"`
	HoursWaiting float64   `json:"hours_waiting"`
	SLA          SLAStatus `json:"sla"`
}

// PendingApprovalsPage is a paginated pending-approvals response.
type PendingApprovalsPage struct {
	Items  []*PendingApproval `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// BulkItemResult reports the outcome of one task id within a bulk operation.
type BulkItemResult struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkResult aggregates a bulk approve/reject run. Failures never abort the
// run; callers must inspect Results rather than assume all-or-nothing.
type BulkResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}
