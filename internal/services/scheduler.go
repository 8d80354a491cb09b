package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/observability"
	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

// Scheduler advances a workflow by activating tasks whose dependencies have
// all completed. It holds no state of its own; readiness is recomputed from
// the store on every invocation, which keeps it correct under concurrent
// mutation and idempotent across repeated calls.
type Scheduler struct {
	store      repository.Store
	dispatcher Dispatcher
	logger     *logging.Logger
}

// NewScheduler creates a new Scheduler. dispatcher may be nil, in which case
// queued tasks wait for the execution layer to poll them.
func NewScheduler(store repository.Store, dispatcher Dispatcher, logger *logging.Logger) *Scheduler {
	return &Scheduler{store: store, dispatcher: dispatcher, logger: logger}
}

// ScheduleNextTasks examines all tasks in the workflow and queues every task
// that is pending with all dependencies completed. No ordering guarantee is
// made among simultaneously-ready siblings. Returns the tasks activated by
// this call.
func (s *Scheduler) ScheduleNextTasks(ctx context.Context, workflowID string) ([]*models.Task, error) {
	ctx, span := observability.StartSpan(ctx, "scheduler.schedule_next_tasks",
		attribute.String("workflow.id", workflowID))
	defer span.End()

	tasks, err := s.store.ListWorkflowTasks(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			completed[t.ID] = true
		}
	}

	var activated []*models.Task
	for _, t := range tasks {
		if t.Status != models.TaskStatusPending {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}

		// The conditional update loses the race gracefully: if another
		// actor queued or mutated the task first, this pass skips it.
		ok, err := s.store.MarkTaskQueued(ctx, t.ID)
		if err != nil {
			return activated, err
		}
		if !ok {
			continue
		}
		t.Status = models.TaskStatusQueued
		activated = append(activated, t)

		if s.dispatcher != nil {
			if err := s.dispatcher.DispatchTask(ctx, t); err != nil {
				s.logger.Warn("dispatch failed for task %s: %v", t.ID, err)
			}
		}
	}

	if len(activated) > 0 {
		observability.TasksQueued.Add(ctx, int64(len(activated)),
			metric.WithAttributes(attribute.String("workflow.id", workflowID)))
		s.logger.Info("scheduler activated %d task(s) in workflow %s", len(activated), workflowID)
	}
	return activated, nil
}
