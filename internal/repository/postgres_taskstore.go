package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskforge/backend/internal/logging"
	"taskforge/backend/pkg/models"
)

// pgLockNotAvailable is the PostgreSQL error code raised when lock_timeout
// expires while waiting on a row lock.
const pgLockNotAvailable = "55P03"

const taskColumns = `id, workflow_id, agent, status, input, output,
	approval_requested_at, approval_deadline, scheduled_date, due_date,
	created_at, updated_at`

// PostgresTaskStore is a PostgreSQL implementation of the Store interface.
type PostgresTaskStore struct {
	db          *pgxpool.Pool
	logger      *logging.Logger
	lockTimeout time.Duration
}

// NewPostgresTaskStore creates a new PostgresTaskStore. lockTimeout bounds
// the wait for the task row lock in WithTaskForUpdate.
func NewPostgresTaskStore(db *pgxpool.Pool, logger *logging.Logger, lockTimeout time.Duration) *PostgresTaskStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &PostgresTaskStore{db: db, logger: logger, lockTimeout: lockTimeout}
}

// CreateOrganization saves a new organization, generating timestamps.
func (s *PostgresTaskStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO organizations (id, name, domain) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		org.ID, org.Name, org.Domain,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	return err
}

// GetOrganizationByDomain retrieves an organization by its email domain.
func (s *PostgresTaskStore) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.QueryRow(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM organizations WHERE domain = $1`,
		domain,
	).Scan(&org.ID, &org.Name, &org.Domain, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// CreateWorkflow saves a new workflow.
func (s *PostgresTaskStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO workflows (id, organization_id, goal, created_by) VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		wf.ID, wf.OrganizationID, wf.Goal, wf.CreatedBy,
	).Scan(&wf.CreatedAt, &wf.UpdatedAt)
	return err
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresTaskStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := scanWorkflow(s.db.QueryRow(ctx,
		`SELECT id, organization_id, goal, created_by, created_at, updated_at FROM workflows WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return wf, err
}

// ListWorkflows returns all workflows belonging to an organization.
func (s *PostgresTaskStore) ListWorkflows(ctx context.Context, orgID string) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, organization_id, goal, created_by, created_at, updated_at
		 FROM workflows WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// CreateTask saves a task and its dependency edges.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task *models.Task) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO tasks (id, workflow_id, agent, status, input, output,
		   approval_requested_at, approval_deadline, scheduled_date, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		task.ID, task.WorkflowID, task.Agent, task.Status, task.Input, task.Output,
		task.ApprovalRequestedAt, task.ApprovalDeadline, task.ScheduledDate, task.DueDate,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return err
	}

	for _, dep := range task.Dependencies {
		if _, err := tx.Exec(ctx,
			`INSERT INTO task_dependencies (task_id, depends_on_task_id) VALUES ($1, $2)`,
			task.ID, dep); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetTask retrieves a task by its ID, including its dependency set.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT depends_on_task_id FROM task_dependencies WHERE task_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		task.Dependencies = append(task.Dependencies, dep)
	}
	return task, rows.Err()
}

// ListWorkflowTasks returns every task in a workflow with dependencies filled.
func (s *PostgresTaskStore) ListWorkflowTasks(ctx context.Context, workflowID string) ([]*models.Task, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*models.Task)
	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		byID[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	depRows, err := s.db.Query(ctx,
		`SELECT task_id, depends_on_task_id FROM task_dependencies
		 WHERE task_id IN (SELECT id FROM tasks WHERE workflow_id = $1)`, workflowID)
	if err != nil {
		return nil, err
	}
	defer depRows.Close()
	for depRows.Next() {
		var taskID, dep string
		if err := depRows.Scan(&taskID, &dep); err != nil {
			return nil, err
		}
		if t, ok := byID[taskID]; ok {
			t.Dependencies = append(t.Dependencies, dep)
		}
	}
	return tasks, depRows.Err()
}

// ListDecisions returns all approval decisions recorded for a task.
func (s *PostgresTaskStore) ListDecisions(ctx context.Context, taskID string) ([]*models.ApprovalDecision, error) {
	rows, err := s.db.Query(ctx,
		`SELECT task_id, actor_id, action, comment, decided_at
		 FROM approval_decisions WHERE task_id = $1 ORDER BY decided_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*models.ApprovalDecision
	for rows.Next() {
		var d models.ApprovalDecision
		if err := rows.Scan(&d.TaskID, &d.ActorID, &d.Action, &d.Comment, &d.DecidedAt); err != nil {
			return nil, err
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

// ListPendingApprovals returns the organization's tasks waiting for approval,
// oldest wait first.
func (s *PostgresTaskStore) ListPendingApprovals(ctx context.Context, orgID string, limit, offset int) ([]*models.PendingApproval, int, error) {
	var total int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM tasks t JOIN workflows w ON w.id = t.workflow_id
		 WHERE w.organization_id = $1 AND t.status = $2`,
		orgID, models.TaskStatusWaitingForApproval,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.workflow_id, t.agent, t.status, t.input, t.output,
		   t.approval_requested_at, t.approval_deadline, t.scheduled_date, t.due_date,
		   t.created_at, t.updated_at, w.goal
		 FROM tasks t JOIN workflows w ON w.id = t.workflow_id
		 WHERE w.organization_id = $1 AND t.status = $2
		 ORDER BY coalesce(t.approval_requested_at, t.updated_at)
		 LIMIT $3 OFFSET $4`,
		orgID, models.TaskStatusWaitingForApproval, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*models.PendingApproval
	for rows.Next() {
		var task models.Task
		var goal string
		err := rows.Scan(&task.ID, &task.WorkflowID, &task.Agent, &task.Status,
			&task.Input, &task.Output,
			&task.ApprovalRequestedAt, &task.ApprovalDeadline, &task.ScheduledDate, &task.DueDate,
			&task.CreatedAt, &task.UpdatedAt, &goal)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, &models.PendingApproval{Task: &task, WorkflowGoal: goal})
	}
	return items, total, rows.Err()
}

// MarkTaskQueued moves a pending task to queued. The status guard in the
// WHERE clause makes concurrent scheduler passes idempotent.
func (s *PostgresTaskStore) MarkTaskQueued(ctx context.Context, taskID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		models.TaskStatusQueued, taskID, models.TaskStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// WithTaskForUpdate runs fn inside a transaction holding SELECT ... FOR
// UPDATE on the task row. lock_timeout is set locally so a contended lock
// fails with ErrLockTimeout instead of waiting forever.
func (s *PostgresTaskStore) WithTaskForUpdate(ctx context.Context, taskID string, fn func(ctx context.Context, tx TaskTx, task *models.Task, wf *models.Workflow) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return err
	}

	task, err := scanTask(tx.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			s.logger.Warn("task row lock timed out: task=%s wait=%s", taskID, s.lockTimeout)
			return ErrLockTimeout
		}
		return err
	}

	depRows, err := tx.Query(ctx,
		`SELECT depends_on_task_id FROM task_dependencies WHERE task_id = $1`, taskID)
	if err != nil {
		return err
	}
	for depRows.Next() {
		var dep string
		if err := depRows.Scan(&dep); err != nil {
			depRows.Close()
			return err
		}
		task.Dependencies = append(task.Dependencies, dep)
	}
	depRows.Close()
	if err := depRows.Err(); err != nil {
		return err
	}

	wf, err := scanWorkflow(tx.QueryRow(ctx,
		`SELECT id, organization_id, goal, created_by, created_at, updated_at FROM workflows WHERE id = $1`,
		task.WorkflowID))
	if err != nil {
		return err
	}

	if err := fn(ctx, &pgxTaskTx{tx: tx}, task, wf); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgxTaskTx implements TaskTx over an open pgx transaction.
type pgxTaskTx struct {
	tx pgx.Tx
}

func (t *pgxTaskTx) UpsertDecision(ctx context.Context, d *models.ApprovalDecision) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO approval_decisions (task_id, actor_id, action, comment, decided_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (task_id, actor_id)
		 DO UPDATE SET action = EXCLUDED.action, comment = EXCLUDED.comment, decided_at = EXCLUDED.decided_at
		 RETURNING decided_at`,
		d.TaskID, d.ActorID, d.Action, d.Comment,
	).Scan(&d.DecidedAt)
}

func (t *pgxTaskTx) SetTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = now() WHERE id = $2`, status, taskID)
	return err
}

func (t *pgxTaskTx) SetTaskOutput(ctx context.Context, taskID string, output map[string]interface{}) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE tasks SET output = $1, updated_at = now() WHERE id = $2`, output, taskID)
	return err
}

func (t *pgxTaskTx) BlockDependents(ctx context.Context, workflowID, taskID, reason string) (int, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = now(),
		   output = coalesce(output, '{}'::jsonb) ||
		     jsonb_build_object('blocked_by', $2::text, 'blocked_reason', $3::text)
		 WHERE workflow_id = $4 AND status = $5
		   AND id IN (SELECT task_id FROM task_dependencies WHERE depends_on_task_id = $2)`,
		models.TaskStatusBlocked, taskID, reason, workflowID, models.TaskStatusPending)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	err := row.Scan(&task.ID, &task.WorkflowID, &task.Agent, &task.Status,
		&task.Input, &task.Output,
		&task.ApprovalRequestedAt, &task.ApprovalDeadline, &task.ScheduledDate, &task.DueDate,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var wf models.Workflow
	err := row.Scan(&wf.ID, &wf.OrganizationID, &wf.Goal, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}
