package services

import (
	"time"

	"taskforge/backend/pkg/models"
)

const (
	// urgentWindow is how close to an explicit deadline a waiting task turns
	// urgent.
	urgentWindow = time.Hour
	// urgentAfter / overdueAfter classify tasks with no explicit deadline by
	// total wait time.
	urgentAfter  = 12 * time.Hour
	overdueAfter = 24 * time.Hour
)

// ClassifyApprovalSLA computes the SLA status and hours waiting for a task in
// waiting_for_approval. Pure read-side computation, recomputed per listing.
func ClassifyApprovalSLA(task *models.Task, now time.Time) (models.SLAStatus, float64) {
	since := task.UpdatedAt
	if task.ApprovalRequestedAt != nil {
		since = *task.ApprovalRequestedAt
	}
	hoursWaiting := now.Sub(since).Hours()

	if task.ApprovalDeadline != nil {
		deadline := *task.ApprovalDeadline
		switch {
		case now.After(deadline):
			return models.SLAOverdue, hoursWaiting
		case now.After(deadline.Add(-urgentWindow)):
			return models.SLAUrgent, hoursWaiting
		default:
			return models.SLAOnTrack, hoursWaiting
		}
	}

	switch {
	case now.Sub(since) > overdueAfter:
		return models.SLAOverdue, hoursWaiting
	case now.Sub(since) > urgentAfter:
		return models.SLAUrgent, hoursWaiting
	default:
		return models.SLAOnTrack, hoursWaiting
	}
}
