package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"taskforge/backend/internal/services"
)

type decisionBody struct {
	Comments string `json:"comments"`
	Reason   string `json:"reason"`
}

type bulkBody struct {
	TaskIDs  []string `json:"taskIds"`
	Comments string   `json:"comments"`
	Reason   string   `json:"reason"`
}

type decisionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type bulkResponse struct {
	Success bool        `json:"success"`
	Results interface{} `json:"results"`
}

// ListPendingApprovals returns the approval queue with SLA classification
// (GET /api/v1/approvals/pending)
func (s *Server) ListPendingApprovals(c echo.Context) error {
	orgID, _, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	page, err := s.Approvals.ListPendingApprovals(c.Request().Context(), orgID, limit, offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ApproveTask records an approve decision
// (POST /api/v1/approvals/tasks/:taskId/approve)
func (s *Server) ApproveTask(c echo.Context) error {
	orgID, actorID, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	var body decisionBody
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, &services.ValidationError{Message: "invalid request body: " + err.Error()})
	}

	result, err := s.Approvals.Approve(c.Request().Context(), orgID, c.Param("taskId"), actorID, body.Comments)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, decisionResponse{
		Success: true,
		Message: "task " + result.TaskID + " approved",
	})
}

// RejectTask records a reject decision and cascades blocks to dependents
// (POST /api/v1/approvals/tasks/:taskId/reject)
func (s *Server) RejectTask(c echo.Context) error {
	orgID, actorID, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	var body decisionBody
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, &services.ValidationError{Message: "invalid request body: " + err.Error()})
	}

	result, err := s.Approvals.Reject(c.Request().Context(), orgID, c.Param("taskId"), actorID, body.Reason, body.Comments)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, decisionResponse{
		Success: true,
		Message: "task " + result.TaskID + " rejected, " + strconv.Itoa(result.BlockedTasks) + " dependent task(s) blocked",
	})
}

// RequestRevision sends a task back for revision without blocking dependents
// (POST /api/v1/approvals/tasks/:taskId/request-revision)
func (s *Server) RequestRevision(c echo.Context) error {
	orgID, actorID, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	var body decisionBody
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, &services.ValidationError{Message: "invalid request body: " + err.Error()})
	}

	result, err := s.Approvals.RequestRevision(c.Request().Context(), orgID, c.Param("taskId"), actorID, body.Comments)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, decisionResponse{
		Success: true,
		Message: "task " + result.TaskID + " sent back for revision",
	})
}

// BulkApprove applies approve to each task id with per-item isolation
// (POST /api/v1/approvals/bulk/approve)
func (s *Server) BulkApprove(c echo.Context) error {
	orgID, actorID, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	var body bulkBody
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, &services.ValidationError{Message: "invalid request body: " + err.Error()})
	}
	if len(body.TaskIDs) == 0 {
		return s.respondError(c, &services.ValidationError{Message: "taskIds must not be empty"})
	}

	result := s.Approvals.BulkApprove(c.Request().Context(), orgID, body.TaskIDs, actorID, body.Comments)
	return c.JSON(http.StatusOK, bulkResponse{Success: true, Results: result})
}

// BulkReject applies reject to each task id with per-item isolation
// (POST /api/v1/approvals/bulk/reject)
func (s *Server) BulkReject(c echo.Context) error {
	orgID, actorID, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	var body bulkBody
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, &services.ValidationError{Message: "invalid request body: " + err.Error()})
	}
	if len(body.TaskIDs) == 0 {
		return s.respondError(c, &services.ValidationError{Message: "taskIds must not be empty"})
	}

	result := s.Approvals.BulkReject(c.Request().Context(), orgID, body.TaskIDs, actorID, body.Reason, body.Comments)
	return c.JSON(http.StatusOK, bulkResponse{Success: true, Results: result})
}

// RetryTask resets a rejected or failed task to pending
// (POST /api/v1/tasks/:taskId/retry)
func (s *Server) RetryTask(c echo.Context) error {
	orgID, actorID, ok := requestIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "organization not found in context")
	}

	result, err := s.Approvals.Retry(c.Request().Context(), orgID, c.Param("taskId"), actorID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, decisionResponse{
		Success: true,
		Message: "task " + result.TaskID + " reset to pending",
	})
}
