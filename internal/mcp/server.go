package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"taskforge/backend/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// defaultActor identifies MCP tool calls in approval decision rows when the
// caller does not name an actor.
const defaultActor = "mcp-agent"

type Server struct {
	mcpServer *server.MCPServer
	approvals *services.ApprovalService
	orgID     string
}

// NewServer creates the MCP tool surface over the approval service, scoped to
// a single service-account organization.
func NewServer(approvals *services.ApprovalService, orgID string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Task Approvals",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		approvals: approvals,
		orgID:     orgID,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_pending_approvals",
			mcp.WithDescription("List tasks waiting for approval, with SLA classification"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items to return")),
		),
		s.handleListPending,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"approve_task",
			mcp.WithDescription("Approve a task waiting for approval"),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("The ID of the task")),
			mcp.WithString("comments", mcp.Description("Optional approval comments")),
			mcp.WithString("actor", mcp.Description("Identity recorded for the decision")),
		),
		s.handleApprove,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"reject_task",
			mcp.WithDescription("Reject a task waiting for approval, blocking its dependents"),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("The ID of the task")),
			mcp.WithString("reason", mcp.Description("Why the task is rejected")),
			mcp.WithString("comments", mcp.Description("Optional rejection comments")),
			mcp.WithString("actor", mcp.Description("Identity recorded for the decision")),
		),
		s.handleReject,
	)
}

func (s *Server) handleListPending(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := 0
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	page, err := s.approvals.ListPendingApprovals(ctx, s.orgID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list pending approvals: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(page)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleApprove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return mcp.NewToolResultError("Missing required parameter: task_id"), nil
	}
	comments, _ := args["comments"].(string)
	actor := defaultActor
	if v, ok := args["actor"].(string); ok && v != "" {
		actor = v
	}

	result, err := s.approvals.Approve(ctx, s.orgID, taskID, actor, comments)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to approve: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleReject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return mcp.NewToolResultError("Missing required parameter: task_id"), nil
	}
	reason, _ := args["reason"].(string)
	comments, _ := args["comments"].(string)
	actor := defaultActor
	if v, ok := args["actor"].(string); ok && v != "" {
		actor = v
	}

	result, err := s.approvals.Reject(ctx, s.orgID, taskID, actor, reason, comments)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reject: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
