package services

import (
	"context"
	"time"

	"taskforge/backend/pkg/models"
)

// Dispatcher notifies the execution layer that a queued task is ready to run.
type Dispatcher interface {
	DispatchTask(ctx context.Context, task *models.Task) error
}

// DecisionEvent describes a committed approval decision for downstream
// learning and audit consumers.
type DecisionEvent struct {
	TaskID         string                `json:"task_id"`
	WorkflowID     string                `json:"workflow_id"`
	OrganizationID string                `json:"organization_id"`
	ActorID        string                `json:"actor_id"`
	Action         models.DecisionAction `json:"action"`
	Reason         string                `json:"reason,omitempty"`
	Comment        string                `json:"comment,omitempty"`
	BlockedTasks   int                   `json:"blocked_tasks,omitempty"`
	DecidedAt      time.Time             `json:"decided_at"`
}

// FeedbackSink receives decision events for learning/memory systems.
type FeedbackSink interface {
	EmitDecision(ctx context.Context, event *DecisionEvent) error
}

// AuditSink persists decision events to the audit log.
type AuditSink interface {
	RecordDecision(ctx context.Context, event *DecisionEvent) error
}
