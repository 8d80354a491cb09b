package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"taskforge/backend/internal/api"
	"taskforge/backend/internal/auth"
	"taskforge/backend/internal/config"
	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/mcp"
	"taskforge/backend/internal/observability"
	"taskforge/backend/internal/repository"
	"taskforge/backend/internal/services"
	tlsutil "taskforge/backend/internal/tls"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "server",
		Short: "Task orchestration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "Path to config file")

	if err := root.Execute(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(configFile string) error {
	ctx := context.Background()

	// Initialize logging
	logger := logging.NewLogger()

	// Load configuration
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger.Info("Starting task orchestration service: env=%s", cfg.Environment)

	// Initialize tracing
	shutdownTracing, err := observability.InitTracing(ctx, "taskforge", cfg.Telemetry.Exporter, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("Tracing shutdown error: %v", err)
		}
	}()

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	logger.Info("Database connected and migrated")

	// Initialize repository layer
	store := repository.NewPostgresTaskStore(dbPool, logger, cfg.Approval.LockTimeout)

	// Initialize service layer. Collaborators without a configured URL stay
	// disabled; their events are best-effort anyway.
	var dispatcher services.Dispatcher
	if cfg.Dispatcher.URL != "" {
		dispatcher = services.NewHTTPDispatcher(cfg.Dispatcher.URL)
	}
	var feedback services.FeedbackSink
	if cfg.Feedback.URL != "" {
		feedback = services.NewHTTPFeedbackSink(cfg.Feedback.URL)
	}
	var audit services.AuditSink
	if cfg.Audit.URL != "" {
		audit = services.NewHTTPAuditSink(cfg.Audit.URL)
	}

	scheduler := services.NewScheduler(store, dispatcher, logger)
	approvals := services.NewApprovalService(store, scheduler, feedback, audit, logger)

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("taskforge"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Mount REST API handlers under /api/v1 with auth middleware
	apiServer := api.NewServer(approvals, store, logger)
	e.GET("/health", apiServer.HandleHealth)
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiServer.RegisterRoutes(apiGroup)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers if a service-account organization is set
	if cfg.MCP.OrganizationID != "" {
		mcpServer := mcp.NewServer(approvals, cfg.MCP.OrganizationID)
		mcpHandlers := http.NewServeMux()
		mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
		e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
		logger.Info("MCP protocol handlers mounted")
	}

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		// use TLS port 8443
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting: address=%s tls=%v", addr, cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tlsutil.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert: %v", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received: %v", sig)

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error: %v", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
