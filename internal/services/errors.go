package services

import (
	"errors"
	"fmt"

	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"
)

// NotFoundError indicates the referenced task or workflow does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// UnauthorizedError indicates a cross-organization access attempt. This is a
// tenant isolation boundary, not a business rule.
type UnauthorizedError struct {
	TaskID string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("task %s does not belong to the requesting organization", e.TaskID)
}

// InvalidStateError indicates the task is not in the status the requested
// transition requires. Current names the status actually observed.
type InvalidStateError struct {
	TaskID   string
	Current  models.TaskStatus
	Expected models.TaskStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("task %s is %s, expected %s", e.TaskID, e.Current, e.Expected)
}

// ValidationError indicates a malformed request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrorCode resolves a taxonomy error to its structured code. Used both by
// the bulk coordinator's per-item error list and the HTTP boundary.
func ErrorCode(err error) string {
	var notFound *NotFoundError
	var unauthorized *UnauthorizedError
	var invalidState *InvalidStateError
	var validation *ValidationError
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &unauthorized):
		return "unauthorized"
	case errors.As(err, &invalidState):
		return "invalid_state"
	case errors.As(err, &validation):
		return "validation_error"
	case errors.Is(err, repository.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "internal"
	}
}
