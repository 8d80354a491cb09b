package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskforge/backend/pkg/models"
)

func TestClassifyApprovalSLA(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	waitingTask := func(requestedAgo time.Duration, deadline *time.Time) *models.Task {
		requested := now.Add(-requestedAgo)
		return &models.Task{
			Status:              models.TaskStatusWaitingForApproval,
			ApprovalRequestedAt: &requested,
			ApprovalDeadline:    deadline,
			UpdatedAt:           requested,
		}
	}
	deadlineIn := func(d time.Duration) *time.Time {
		dl := now.Add(d)
		return &dl
	}

	tests := []struct {
		name  string
		task  *models.Task
		want  models.SLAStatus
		hours float64
	}{
		{"deadline 59 minutes out is urgent", waitingTask(2*time.Hour, deadlineIn(59*time.Minute)), models.SLAUrgent, 2},
		{"deadline 61 minutes out is on track", waitingTask(2*time.Hour, deadlineIn(61*time.Minute)), models.SLAOnTrack, 2},
		{"past deadline is overdue", waitingTask(2*time.Hour, deadlineIn(-time.Minute)), models.SLAOverdue, 2},
		{"no deadline, short wait is on track", waitingTask(3*time.Hour, nil), models.SLAOnTrack, 3},
		{"no deadline, 13 hours is urgent", waitingTask(13*time.Hour, nil), models.SLAUrgent, 13},
		{"no deadline, 25 hours is overdue", waitingTask(25*time.Hour, nil), models.SLAOverdue, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hours := ClassifyApprovalSLA(tt.task, now)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.hours, hours, 0.01)
		})
	}
}

func TestClassifyApprovalSLAFallsBackToUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	task := &models.Task{
		Status:    models.TaskStatusWaitingForApproval,
		UpdatedAt: now.Add(-26 * time.Hour),
	}

	got, hours := ClassifyApprovalSLA(task, now)
	assert.Equal(t, models.SLAOverdue, got)
	assert.InDelta(t, 26.0, hours, 0.01)
}
