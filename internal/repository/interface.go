package repository

import (
	"context"
	"errors"

	"taskforge/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrLockTimeout is returned when the task row lock could not be acquired
// within the configured bound. Transient; callers may retry.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// TaskTx exposes the writes available inside the lock-held critical section
// of an approval decision. All of them apply to the same transaction; if the
// callback returns an error the transaction is rolled back as a whole.
type TaskTx interface {
	// UpsertDecision inserts the decision row or overwrites the existing
	// (task, actor) row's action, comment and timestamp.
	UpsertDecision(ctx context.Context, d *models.ApprovalDecision) error
	// SetTaskStatus updates the task's status and bumps updated_at.
	SetTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	// SetTaskOutput replaces the task's output payload. A nil output clears it.
	SetTaskOutput(ctx context.Context, taskID string, output map[string]interface{}) error
	// BlockDependents marks every pending task in the workflow that depends
	// on the given task as blocked, carrying a reason payload. Returns the
	// number of tasks blocked.
	BlockDependents(ctx context.Context, workflowID, taskID, reason string) (int, error)
}

// Store is the durable source of truth for workflows, tasks, dependency
// links and approval decisions.
type Store interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error)

	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, orgID string) ([]*models.Workflow, error)

	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListWorkflowTasks(ctx context.Context, workflowID string) ([]*models.Task, error)
	ListDecisions(ctx context.Context, taskID string) ([]*models.ApprovalDecision, error)

	// ListPendingApprovals returns the organization's tasks currently waiting
	// for approval, oldest wait first, plus the total count for pagination.
	// SLA fields are left for the caller to fill.
	ListPendingApprovals(ctx context.Context, orgID string, limit, offset int) ([]*models.PendingApproval, int, error)

	// MarkTaskQueued moves a task from pending to queued. Returns false when
	// the task was not pending, which makes concurrent scheduler invocations
	// idempotent.
	MarkTaskQueued(ctx context.Context, taskID string) (bool, error)

	// WithTaskForUpdate runs fn holding an exclusive row lock on the task.
	// The task and its parent workflow are loaded under the lock. Everything
	// fn writes through the TaskTx commits atomically with the lock release;
	// any error rolls the whole critical section back. Returns ErrNotFound
	// for an unknown task and ErrLockTimeout when the lock wait exceeds the
	// configured bound.
	WithTaskForUpdate(ctx context.Context, taskID string, fn func(ctx context.Context, tx TaskTx, task *models.Task, wf *models.Workflow) error) error
}
