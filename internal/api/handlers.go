// Package api contains the HTTP handlers for the orchestration service
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/repository"
	"taskforge/backend/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	Approvals *services.ApprovalService
	Store     repository.Store
	Logger    *logging.Logger
}

// NewServer creates a new Server.
func NewServer(approvals *services.ApprovalService, store repository.Store, logger *logging.Logger) *Server {
	return &Server{Approvals: approvals, Store: store, Logger: logger}
}

// RegisterRoutes mounts the REST surface on an echo group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/approvals/pending", s.ListPendingApprovals)
	g.POST("/approvals/tasks/:taskId/approve", s.ApproveTask)
	g.POST("/approvals/tasks/:taskId/reject", s.RejectTask)
	g.POST("/approvals/tasks/:taskId/request-revision", s.RequestRevision)
	g.POST("/approvals/bulk/approve", s.BulkApprove)
	g.POST("/approvals/bulk/reject", s.BulkReject)
	g.POST("/tasks/:taskId/retry", s.RetryTask)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/workflows/:id", s.GetWorkflow)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "taskforge",
		Version:   "1.0.0",
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// statusFor maps a taxonomy error code to its HTTP status. This is the only
// place domain errors meet transport status.
func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusForbidden
	case "invalid_state", "validation_error":
		return http.StatusBadRequest
	case "lock_timeout":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError resolves a taxonomy error to an HTTP status and structured
// code at the request boundary.
func (s *Server) respondError(c echo.Context, err error) error {
	code := services.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed: %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, errorResponse{Success: false, Code: code, Error: err.Error()})
}

// requestIdentity pulls the organization and actor injected by the auth
// middleware.
func requestIdentity(c echo.Context) (orgID, actorID string, ok bool) {
	ctx := c.Request().Context()
	orgID, _ = ctx.Value("org_id").(string)
	actorID, _ = ctx.Value("actor_id").(string)
	return orgID, actorID, orgID != "" && actorID != ""
}
