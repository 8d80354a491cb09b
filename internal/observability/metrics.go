package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	// DecisionsTotal counts committed approval decisions, labeled by action.
	DecisionsTotal metric.Int64Counter
	// TasksQueued counts tasks moved to queued by the scheduler.
	TasksQueued metric.Int64Counter
	// TasksBlocked counts tasks blocked by rejection cascades.
	TasksBlocked metric.Int64Counter
)

func init() {
	meter := otel.Meter(tracerName)
	DecisionsTotal, _ = meter.Int64Counter("approval.decisions",
		metric.WithDescription("Approval decisions committed"))
	TasksQueued, _ = meter.Int64Counter("scheduler.tasks_queued",
		metric.WithDescription("Tasks activated by the scheduler"))
	TasksBlocked, _ = meter.Int64Counter("approval.tasks_blocked",
		metric.WithDescription("Tasks blocked by rejection cascades"))
}
