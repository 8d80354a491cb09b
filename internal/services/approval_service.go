package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/observability"
	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

// maxPendingLimit caps the pending-approvals page size.
const maxPendingLimit = 100

// ApprovalService is the concurrency-safe gateway for approval decisions.
// All mutation runs inside the store's row-lock critical section; the service
// holds no ambient state.
type ApprovalService struct {
	store     repository.Store
	scheduler *Scheduler
	feedback  FeedbackSink
	audit     AuditSink
	logger    *logging.Logger
}

// NewApprovalService creates a new ApprovalService. feedback and audit may be
// nil; their events are best-effort either way.
func NewApprovalService(store repository.Store, scheduler *Scheduler, feedback FeedbackSink, audit AuditSink, logger *logging.Logger) *ApprovalService {
	return &ApprovalService{
		store:     store,
		scheduler: scheduler,
		feedback:  feedback,
		audit:     audit,
		logger:    logger,
	}
}

// DecisionResult reports a committed decision.
type DecisionResult struct {
	TaskID         string                `json:"task_id"`
	WorkflowID     string                `json:"workflow_id"`
	OrganizationID string                `json:"-"`
	Action         models.DecisionAction `json:"action"`
	NewStatus      models.TaskStatus     `json:"new_status"`
	BlockedTasks   int                   `json:"blocked_tasks,omitempty"`
}

type decisionRequest struct {
	orgID   string
	taskID  string
	actorID string
	action  models.DecisionAction
	reason  string
	comment string
}

// Approve records an approve decision and returns the task to the ready
// queue. The task re-enters pending rather than completing directly so the
// execution layer can pick it up.
func (s *ApprovalService) Approve(ctx context.Context, orgID, taskID, actorID, comment string) (*DecisionResult, error) {
	return s.decide(ctx, decisionRequest{
		orgID:   orgID,
		taskID:  taskID,
		actorID: actorID,
		action:  models.DecisionApprove,
		comment: comment,
	})
}

// Reject records a reject decision and cascades a blocked status to every
// pending task in the workflow that depends on the rejected task.
func (s *ApprovalService) Reject(ctx context.Context, orgID, taskID, actorID, reason, comment string) (*DecisionResult, error) {
	return s.decide(ctx, decisionRequest{
		orgID:   orgID,
		taskID:  taskID,
		actorID: actorID,
		action:  models.DecisionReject,
		reason:  reason,
		comment: comment,
	})
}

// RequestRevision records a revision request. Behaves like a rejection
// without the cascade: the task leaves the approval gate but its dependents
// stay untouched.
func (s *ApprovalService) RequestRevision(ctx context.Context, orgID, taskID, actorID, comment string) (*DecisionResult, error) {
	return s.decide(ctx, decisionRequest{
		orgID:   orgID,
		taskID:  taskID,
		actorID: actorID,
		action:  models.DecisionRequestRevision,
		comment: comment,
	})
}

// decide runs the locked critical section for a single decision: ownership
// check, state check, decision upsert, status transition and (on reject) the
// cascade, all in one transaction. Post-commit side effects run outside the
// lock and never roll the decision back.
func (s *ApprovalService) decide(ctx context.Context, req decisionRequest) (*DecisionResult, error) {
	ctx, span := observability.StartSpan(ctx, "approval.decide",
		attribute.String("task.id", req.taskID),
		attribute.String("decision.action", string(req.action)))
	defer span.End()

	var result *DecisionResult
	err := s.store.WithTaskForUpdate(ctx, req.taskID, func(ctx context.Context, tx repository.TaskTx, task *models.Task, wf *models.Workflow) error {
		if wf.OrganizationID != req.orgID {
			s.logger.Warn("SECURITY: cross-organization decision attempt: task=%s task_org=%s actor=%s actor_org=%s",
				task.ID, wf.OrganizationID, req.actorID, req.orgID)
			return &UnauthorizedError{TaskID: task.ID}
		}
		if task.Status != models.TaskStatusWaitingForApproval {
			return &InvalidStateError{
				TaskID:   task.ID,
				Current:  task.Status,
				Expected: models.TaskStatusWaitingForApproval,
			}
		}

		if err := tx.UpsertDecision(ctx, &models.ApprovalDecision{
			TaskID:  task.ID,
			ActorID: req.actorID,
			Action:  req.action,
			Comment: req.comment,
		}); err != nil {
			return err
		}

		newStatus := transitionFor(req.action)
		if err := tx.SetTaskStatus(ctx, task.ID, newStatus); err != nil {
			return err
		}

		blocked := 0
		if req.action == models.DecisionReject {
			var err error
			blocked, err = tx.BlockDependents(ctx, wf.ID, task.ID, req.reason)
			if err != nil {
				return err
			}
		}

		result = &DecisionResult{
			TaskID:         task.ID,
			WorkflowID:     wf.ID,
			OrganizationID: wf.OrganizationID,
			Action:         req.action,
			NewStatus:      newStatus,
			BlockedTasks:   blocked,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "task", ID: req.taskID}
		}
		return nil, err
	}

	s.afterDecision(ctx, result, req)
	return result, nil
}

// transitionFor maps a decision action to the resulting task status.
func transitionFor(action models.DecisionAction) models.TaskStatus {
	switch action {
	case models.DecisionApprove:
		return models.TaskStatusPending
	case models.DecisionReject:
		return models.TaskStatusRejected
	default:
		return models.TaskStatusWaitingForRevision
	}
}

// afterDecision runs the best-effort post-commit phase: scheduler pass,
// feedback emission, audit record. Failures here are logged, never surfaced;
// the decision has already committed.
func (s *ApprovalService) afterDecision(ctx context.Context, result *DecisionResult, req decisionRequest) {
	observability.DecisionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", string(result.Action))))
	if result.BlockedTasks > 0 {
		observability.TasksBlocked.Add(ctx, int64(result.BlockedTasks))
	}

	if _, err := s.scheduler.ScheduleNextTasks(ctx, result.WorkflowID); err != nil {
		s.logger.Warn("post-decision scheduling failed for workflow %s: %v", result.WorkflowID, err)
	}

	event := &DecisionEvent{
		TaskID:         result.TaskID,
		WorkflowID:     result.WorkflowID,
		OrganizationID: result.OrganizationID,
		ActorID:        req.actorID,
		Action:         result.Action,
		Reason:         req.reason,
		Comment:        req.comment,
		BlockedTasks:   result.BlockedTasks,
		DecidedAt:      time.Now().UTC(),
	}
	if s.feedback != nil {
		if err := s.feedback.EmitDecision(ctx, event); err != nil {
			s.logger.Warn("feedback emission failed for task %s: %v", result.TaskID, err)
		}
	}
	if s.audit != nil {
		if err := s.audit.RecordDecision(ctx, event); err != nil {
			s.logger.Warn("audit record failed for task %s: %v", result.TaskID, err)
		}
	}
}

// Retry resets a rejected or failed task to pending, clearing its prior
// terminal output, then re-runs the scheduler for the workflow.
func (s *ApprovalService) Retry(ctx context.Context, orgID, taskID, actorID string) (*DecisionResult, error) {
	var result *DecisionResult
	err := s.store.WithTaskForUpdate(ctx, taskID, func(ctx context.Context, tx repository.TaskTx, task *models.Task, wf *models.Workflow) error {
		if wf.OrganizationID != orgID {
			s.logger.Warn("SECURITY: cross-organization retry attempt: task=%s task_org=%s actor=%s actor_org=%s",
				task.ID, wf.OrganizationID, actorID, orgID)
			return &UnauthorizedError{TaskID: task.ID}
		}
		if task.Status != models.TaskStatusRejected && task.Status != models.TaskStatusFailed {
			return &InvalidStateError{
				TaskID:   task.ID,
				Current:  task.Status,
				Expected: models.TaskStatusRejected,
			}
		}
		if err := tx.SetTaskOutput(ctx, task.ID, nil); err != nil {
			return err
		}
		if err := tx.SetTaskStatus(ctx, task.ID, models.TaskStatusPending); err != nil {
			return err
		}
		result = &DecisionResult{
			TaskID:         task.ID,
			WorkflowID:     wf.ID,
			OrganizationID: wf.OrganizationID,
			NewStatus:      models.TaskStatusPending,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "task", ID: taskID}
		}
		return nil, err
	}

	if _, err := s.scheduler.ScheduleNextTasks(ctx, result.WorkflowID); err != nil {
		s.logger.Warn("post-retry scheduling failed for workflow %s: %v", result.WorkflowID, err)
	}
	return result, nil
}

// BulkApprove applies the single-task approve protocol to each id in turn.
// Per-item failures are recorded and processing continues; the caller must
// inspect the result list rather than assume all-or-nothing.
func (s *ApprovalService) BulkApprove(ctx context.Context, orgID string, taskIDs []string, actorID, comment string) *models.BulkResult {
	return s.bulk(ctx, taskIDs, func(taskID string) error {
		_, err := s.Approve(ctx, orgID, taskID, actorID, comment)
		return err
	})
}

// BulkReject applies the single-task reject protocol to each id in turn, with
// the same per-item isolation as BulkApprove.
func (s *ApprovalService) BulkReject(ctx context.Context, orgID string, taskIDs []string, actorID, reason, comment string) *models.BulkResult {
	return s.bulk(ctx, taskIDs, func(taskID string) error {
		_, err := s.Reject(ctx, orgID, taskID, actorID, reason, comment)
		return err
	})
}

func (s *ApprovalService) bulk(ctx context.Context, taskIDs []string, apply func(taskID string) error) *models.BulkResult {
	result := &models.BulkResult{Results: make([]models.BulkItemResult, 0, len(taskIDs))}
	for _, taskID := range taskIDs {
		if err := apply(taskID); err != nil {
			result.Failed++
			result.Results = append(result.Results, models.BulkItemResult{
				TaskID: taskID,
				Code:   ErrorCode(err),
				Error:  err.Error(),
			})
			continue
		}
		result.Succeeded++
		result.Results = append(result.Results, models.BulkItemResult{TaskID: taskID, Success: true})
	}
	return result
}

// ListPendingApprovals returns the organization's approval queue with SLA
// classification computed per item.
func (s *ApprovalService) ListPendingApprovals(ctx context.Context, orgID string, limit, offset int) (*models.PendingApprovalsPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.store.ListPendingApprovals(ctx, orgID, limit, offset)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, item := range items {
		item.SLA, item.HoursWaiting = ClassifyApprovalSLA(item.Task, now)
	}
	return &models.PendingApprovalsPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}
