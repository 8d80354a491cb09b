package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskforge/backend/internal/repository"
	"taskforge/backend/internal/services"
	"taskforge/backend/pkg/models"
)

type workflowDetail struct {
	Workflow *models.Workflow `json:"workflow"`
	Tasks    []*models.Task   `json:"tasks"`
}

// ListWorkflows returns the organization's workflows with derived status
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	orgID, _, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}
	ctx := c.Request().Context()

	workflows, err := s.Store.ListWorkflows(ctx, orgID)
	if err != nil {
		return s.respondError(c, err)
	}

	for _, wf := range workflows {
		tasks, err := s.Store.ListWorkflowTasks(ctx, wf.ID)
		if err != nil {
			return s.respondError(c, err)
		}
		wf.Status = models.DeriveWorkflowStatus(tasks)
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns one workflow with its tasks and derived status
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	orgID, _, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}
	ctx := c.Request().Context()
	id := c.Param("id")

	wf, err := s.Store.GetWorkflow(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return s.respondError(c, &services.NotFoundError{Resource: "workflow", ID: id})
	}
	if err != nil {
		return s.respondError(c, err)
	}
	if wf.OrganizationID != orgID {
		s.Logger.Warn("SECURITY: cross-organization workflow read attempt: workflow=%s org=%s", wf.ID, orgID)
		return s.respondError(c, &services.UnauthorizedError{TaskID: wf.ID})
	}

	tasks, err := s.Store.ListWorkflowTasks(ctx, wf.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	wf.Status = models.DeriveWorkflowStatus(tasks)

	return c.JSON(http.StatusOK, workflowDetail{Workflow: wf, Tasks: tasks})
}
