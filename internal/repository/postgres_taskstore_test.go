package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"taskforge/backend/internal/logging"
	"taskforge/backend/pkg/models"
)

func TestPostgresTaskStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresTaskStore(pool, logging.NewLogger(), 2*time.Second)

	org := &models.Organization{ID: uuid.New().String(), Name: "Acme", Domain: "acme.test"}
	require.NoError(t, store.CreateOrganization(ctx, org))

	newWorkflow := func(t *testing.T) *models.Workflow {
		t.Helper()
		wf := &models.Workflow{ID: uuid.New().String(), OrganizationID: org.ID, Goal: "test goal"}
		require.NoError(t, store.CreateWorkflow(ctx, wf))
		return wf
	}
	newTask := func(t *testing.T, wfID string, status models.TaskStatus, deps ...string) *models.Task {
		t.Helper()
		task := &models.Task{
			ID:           uuid.New().String(),
			WorkflowID:   wfID,
			Agent:        "test-agent",
			Status:       status,
			Dependencies: deps,
			Input:        map[string]interface{}{"k": "v"},
		}
		require.NoError(t, store.CreateTask(ctx, task))
		return task
	}

	t.Run("organization lookup", func(t *testing.T) {
		found, err := store.GetOrganizationByDomain(ctx, "acme.test")
		require.NoError(t, err)
		assert.Equal(t, org.ID, found.ID)

		_, err = store.GetOrganizationByDomain(ctx, "unknown.test")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("task round trip with dependencies", func(t *testing.T) {
		wf := newWorkflow(t)
		dep := newTask(t, wf.ID, models.TaskStatusCompleted)
		task := newTask(t, wf.ID, models.TaskStatusPending, dep.ID)

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, got.Status)
		assert.Equal(t, []string{dep.ID}, got.Dependencies)
		assert.Equal(t, map[string]interface{}{"k": "v"}, got.Input)

		tasks, err := store.ListWorkflowTasks(ctx, wf.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := store.GetTask(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)

		err = store.WithTaskForUpdate(ctx, uuid.New().String(),
			func(ctx context.Context, tx TaskTx, task *models.Task, wf *models.Workflow) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("mark queued is conditional", func(t *testing.T) {
		wf := newWorkflow(t)
		task := newTask(t, wf.ID, models.TaskStatusPending)

		ok, err := store.MarkTaskQueued(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkTaskQueued(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, ok, "already queued")
	})

	t.Run("decision upsert keeps one row per actor", func(t *testing.T) {
		wf := newWorkflow(t)
		task := newTask(t, wf.ID, models.TaskStatusWaitingForApproval)

		record := func(action models.DecisionAction, comment string) {
			err := store.WithTaskForUpdate(ctx, task.ID,
				func(ctx context.Context, tx TaskTx, task *models.Task, wf *models.Workflow) error {
					return tx.UpsertDecision(ctx, &models.ApprovalDecision{
						TaskID: task.ID, ActorID: "alice@acme.test", Action: action, Comment: comment,
					})
				})
			require.NoError(t, err)
		}
		record(models.DecisionReject, "first")
		record(models.DecisionApprove, "second")

		decisions, err := store.ListDecisions(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.Equal(t, models.DecisionApprove, decisions[0].Action)
		assert.Equal(t, "second", decisions[0].Comment)
	})

	t.Run("block dependents cascade", func(t *testing.T) {
		wf := newWorkflow(t)
		target := newTask(t, wf.ID, models.TaskStatusWaitingForApproval)
		dependent := newTask(t, wf.ID, models.TaskStatusPending, target.ID)
		doneDependent := newTask(t, wf.ID, models.TaskStatusCompleted, target.ID)
		bystander := newTask(t, wf.ID, models.TaskStatusPending)

		err := store.WithTaskForUpdate(ctx, target.ID,
			func(ctx context.Context, tx TaskTx, task *models.Task, w *models.Workflow) error {
				if err := tx.SetTaskStatus(ctx, task.ID, models.TaskStatusRejected); err != nil {
					return err
				}
				blocked, err := tx.BlockDependents(ctx, w.ID, task.ID, "bad draft")
				if err != nil {
					return err
				}
				assert.Equal(t, 1, blocked)
				return nil
			})
		require.NoError(t, err)

		got, err := store.GetTask(ctx, dependent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusBlocked, got.Status)
		assert.Equal(t, "bad draft", got.Output["blocked_reason"])

		got, err = store.GetTask(ctx, doneDependent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, got.Status, "terminal dependents untouched")

		got, err = store.GetTask(ctx, bystander.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, got.Status)
	})

	t.Run("rollback on callback error", func(t *testing.T) {
		wf := newWorkflow(t)
		task := newTask(t, wf.ID, models.TaskStatusWaitingForApproval)

		err := store.WithTaskForUpdate(ctx, task.ID,
			func(ctx context.Context, tx TaskTx, task *models.Task, wf *models.Workflow) error {
				if err := tx.SetTaskStatus(ctx, task.ID, models.TaskStatusRejected); err != nil {
					return err
				}
				return assert.AnError
			})
		require.ErrorIs(t, err, assert.AnError)

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusWaitingForApproval, got.Status, "partial writes must not be visible")
	})

	t.Run("concurrent critical sections serialize", func(t *testing.T) {
		wf := newWorkflow(t)
		task := newTask(t, wf.ID, models.TaskStatusWaitingForApproval)

		transition := func(to models.TaskStatus) error {
			return store.WithTaskForUpdate(ctx, task.ID,
				func(ctx context.Context, tx TaskTx, task *models.Task, wf *models.Workflow) error {
					if task.Status != models.TaskStatusWaitingForApproval {
						return assert.AnError
					}
					// Hold the lock briefly to force overlap.
					time.Sleep(100 * time.Millisecond)
					return tx.SetTaskStatus(ctx, task.ID, to)
				})
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = transition(models.TaskStatusPending) }()
		go func() { defer wg.Done(); errs[1] = transition(models.TaskStatusRejected) }()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded, "second lock holder must observe the committed status")

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.NotEqual(t, models.TaskStatusWaitingForApproval, got.Status)
	})

	t.Run("pending approvals listing", func(t *testing.T) {
		wf := newWorkflow(t)
		requested := time.Now().UTC().Add(-2 * time.Hour)
		waiting := &models.Task{
			ID:                  uuid.New().String(),
			WorkflowID:          wf.ID,
			Agent:               "reviewer",
			Status:              models.TaskStatusWaitingForApproval,
			ApprovalRequestedAt: &requested,
		}
		require.NoError(t, store.CreateTask(ctx, waiting))
		newTask(t, wf.ID, models.TaskStatusPending)

		items, total, err := store.ListPendingApprovals(ctx, org.ID, 100, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 1)

		found := false
		for _, item := range items {
			if item.Task.ID == waiting.ID {
				found = true
				assert.Equal(t, "test goal", item.WorkflowGoal)
				require.NotNil(t, item.Task.ApprovalRequestedAt)
			}
		}
		assert.True(t, found)

		_, otherTotal, err := store.ListPendingApprovals(ctx, uuid.New().String(), 100, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, otherTotal, "other organizations see nothing")
	})
}
