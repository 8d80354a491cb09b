package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

// fakeStore is an in-memory Store. Its mutex is held for the whole
// WithTaskForUpdate callback, which models the row lock: concurrent critical
// sections on any task serialize, and the second caller observes the first
// caller's committed state.
type fakeStore struct {
	mu        sync.Mutex
	orgs      map[string]*models.Organization
	workflows map[string]*models.Workflow
	tasks     map[string]*models.Task
	decisions map[string]*models.ApprovalDecision
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:      make(map[string]*models.Organization),
		workflows: make(map[string]*models.Workflow),
		tasks:     make(map[string]*models.Task),
		decisions: make(map[string]*models.ApprovalDecision),
	}
}

func decisionKey(taskID, actorID string) string { return taskID + "|" + actorID }

func (s *fakeStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.Domain] = org
	return nil
}

func (s *fakeStore) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[domain]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return org, nil
}

func (s *fakeStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
	return nil
}

func (s *fakeStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return wf, nil
}

func (s *fakeStore) ListWorkflows(ctx context.Context, orgID string) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Workflow
	for _, wf := range s.workflows {
		if wf.OrganizationID == orgID {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *fakeStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return task, nil
}

func (s *fakeStore) ListWorkflowTasks(ctx context.Context, workflowID string) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.WorkflowID == workflowID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListDecisions(ctx context.Context, taskID string) ([]*models.ApprovalDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ApprovalDecision
	for _, d := range s.decisions {
		if d.TaskID == taskID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) ListPendingApprovals(ctx context.Context, orgID string, limit, offset int) ([]*models.PendingApproval, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var waiting []*models.Task
	for _, t := range s.tasks {
		wf, ok := s.workflows[t.WorkflowID]
		if !ok || wf.OrganizationID != orgID {
			continue
		}
		if t.Status == models.TaskStatusWaitingForApproval {
			waiting = append(waiting, t)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].ID < waiting[j].ID })

	total := len(waiting)
	if offset > len(waiting) {
		offset = len(waiting)
	}
	waiting = waiting[offset:]
	if limit < len(waiting) {
		waiting = waiting[:limit]
	}

	items := make([]*models.PendingApproval, 0, len(waiting))
	for _, t := range waiting {
		items = append(items, &models.PendingApproval{
			Task:         t,
			WorkflowGoal: s.workflows[t.WorkflowID].Goal,
		})
	}
	return items, total, nil
}

func (s *fakeStore) MarkTaskQueued(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok || task.Status != models.TaskStatusPending {
		return false, nil
	}
	task.Status = models.TaskStatusQueued
	task.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *fakeStore) WithTaskForUpdate(ctx context.Context, taskID string, fn func(ctx context.Context, tx repository.TaskTx, task *models.Task, wf *models.Workflow) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return repository.ErrNotFound
	}
	wf, ok := s.workflows[task.WorkflowID]
	if !ok {
		return repository.ErrNotFound
	}
	// Snapshot for rollback on error.
	snapshot := *task
	if err := fn(ctx, &fakeTx{store: s}, task, wf); err != nil {
		*task = snapshot
		return err
	}
	return nil
}

// fakeTx operates under the mutex already held by WithTaskForUpdate.
type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) UpsertDecision(ctx context.Context, d *models.ApprovalDecision) error {
	d.DecidedAt = time.Now().UTC()
	copied := *d
	t.store.decisions[decisionKey(d.TaskID, d.ActorID)] = &copied
	return nil
}

func (t *fakeTx) SetTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	task := t.store.tasks[taskID]
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *fakeTx) SetTaskOutput(ctx context.Context, taskID string, output map[string]interface{}) error {
	t.store.tasks[taskID].Output = output
	return nil
}

func (t *fakeTx) BlockDependents(ctx context.Context, workflowID, taskID, reason string) (int, error) {
	blocked := 0
	for _, task := range t.store.tasks {
		if task.WorkflowID != workflowID || task.Status != models.TaskStatusPending {
			continue
		}
		for _, dep := range task.Dependencies {
			if dep == taskID {
				task.Status = models.TaskStatusBlocked
				task.Output = map[string]interface{}{"blocked_by": taskID, "blocked_reason": reason}
				blocked++
				break
			}
		}
	}
	return blocked, nil
}

// fakeDispatcher records dispatched task ids.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
}

func (d *fakeDispatcher) DispatchTask(ctx context.Context, task *models.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, task.ID)
	return nil
}

func (d *fakeDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dispatched...)
}

// recordingSink captures decision events; fail makes every emission error.
type recordingSink struct {
	mu     sync.Mutex
	events []*DecisionEvent
	fail   bool
}

func (s *recordingSink) emit(event *DecisionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) EmitDecision(ctx context.Context, event *DecisionEvent) error {
	return s.emit(event)
}

func (s *recordingSink) RecordDecision(ctx context.Context, event *DecisionEvent) error {
	return s.emit(event)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
