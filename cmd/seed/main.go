package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"taskforge/backend/internal/config"
	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	store := repository.NewPostgresTaskStore(pool, logger, cfg.Approval.LockTimeout)

	// 1. Ensure the dev organization exists
	domain := "localhost"
	org, err := store.GetOrganizationByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default organization: domain=%s", domain)
		org = &models.Organization{
			ID:     uuid.New().String(),
			Name:   "Local Dev Org",
			Domain: domain,
		}
		if err := store.CreateOrganization(ctx, org); err != nil {
			log.Fatalf("Failed to create organization: %v", err)
		}
	} else {
		logger.Info("Found existing organization: id=%s", org.ID)
	}

	// 2. Create a demo workflow with an approval-gated dependency graph:
	// research -> draft -> review (waiting for approval) -> {publish, notify}
	wf := &models.Workflow{
		ID:             uuid.New().String(),
		OrganizationID: org.ID,
		Goal:           "Launch spring campaign",
		CreatedBy:      "seed-script",
	}
	if err := store.CreateWorkflow(ctx, wf); err != nil {
		log.Fatalf("Failed to create workflow: %v", err)
	}

	now := time.Now().UTC()
	deadline := now.Add(8 * time.Hour)

	research := seedTask(wf.ID, "research-agent", models.TaskStatusCompleted, nil, nil)
	draft := seedTask(wf.ID, "copywriter-agent", models.TaskStatusCompleted, []string{research.ID}, nil)
	review := seedTask(wf.ID, "reviewer", models.TaskStatusWaitingForApproval, []string{draft.ID}, &deadline)
	review.ApprovalRequestedAt = &now
	publish := seedTask(wf.ID, "publisher-agent", models.TaskStatusPending, []string{review.ID}, nil)
	notify := seedTask(wf.ID, "notifier-agent", models.TaskStatusPending, []string{review.ID}, nil)

	for _, task := range []*models.Task{research, draft, review, publish, notify} {
		if err := store.CreateTask(ctx, task); err != nil {
			log.Fatalf("Failed to create task %s: %v", task.Agent, err)
		}
		logger.Info("Seeded task: agent=%s status=%s id=%s", task.Agent, task.Status, task.ID)
	}

	logger.Info("Seeding complete: workflow=%s", wf.ID)
}

func seedTask(workflowID, agent string, status models.TaskStatus, deps []string, deadline *time.Time) *models.Task {
	return &models.Task{
		ID:               uuid.New().String(),
		WorkflowID:       workflowID,
		Agent:            agent,
		Status:           status,
		Dependencies:     deps,
		ApprovalDeadline: deadline,
		Input:            map[string]interface{}{"goal": "Launch spring campaign"},
	}
}
