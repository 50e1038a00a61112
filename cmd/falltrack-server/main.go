package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jihoon2park/falltrack/internal/config"
	"github.com/jihoon2park/falltrack/internal/domain/incident"
	"github.com/jihoon2park/falltrack/internal/domain/policy"
	"github.com/jihoon2park/falltrack/internal/domain/task"
	"github.com/jihoon2park/falltrack/internal/platform/auth"
	"github.com/jihoon2park/falltrack/internal/platform/db"
	"github.com/jihoon2park/falltrack/internal/platform/middleware"
	"github.com/jihoon2park/falltrack/internal/platform/telemetry"
	"github.com/jihoon2park/falltrack/internal/source"
	"github.com/jihoon2park/falltrack/internal/sync"
	"github.com/jihoon2park/falltrack/internal/worker"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "falltrack-server",
		Short: "Fall incident compliance tracking server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background sync workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			site, _ := cmd.Flags().GetString("site")
			full, _ := cmd.Flags().GetBool("full")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.SourceBaseURL == "" {
				return fmt.Errorf("SOURCE_BASE_URL is required for sync")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			syncer := buildSyncer(cfg, pool, telemetry.NewProvider("falltrack", version), logger)

			sites := cfg.Sites
			if site != "" {
				sites = []string{site}
			}
			for _, s := range sites {
				res, err := syncer.SyncIncidents(ctx, s, full)
				if err != nil {
					return err
				}
				matched, err := syncer.MatchNotes(ctx, s)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d created, %d updated, %d skipped, %d notes matched\n",
					s, res.Created, res.Updated, res.Skipped, matched)
			}
			return nil
		},
	}
	cmd.Flags().String("site", "", "Sync a single site instead of all configured sites")
	cmd.Flags().Bool("full", false, "Ignore cursors and re-query the full seed window")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func buildSyncer(cfg *config.Config, pool *pgxpool.Pool, metrics *telemetry.Provider, logger zerolog.Logger) *sync.Syncer {
	client := source.NewHTTPClient(cfg.SourceBaseURL, cfg.SourceAPIKey, cfg.SourceTimeout())
	incidentRepo := incident.NewRepoPG(pool)
	taskRepo := task.NewRepoPG(pool)
	policySvc := policy.NewService(policy.NewRepoPG(pool))
	cursorRepo := sync.NewCursorRepoPG(pool)
	return sync.NewSyncer(cfg, client, incidentRepo, taskRepo, policySvc, cursorRepo, pool, metrics, logger)
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewProvider("falltrack", version)

	// Repositories and services
	incidentRepo := incident.NewRepoPG(pool)
	taskRepo := task.NewRepoPG(pool)
	policyRepo := policy.NewRepoPG(pool)
	policySvc := policy.NewService(policyRepo)
	incidentSvc := incident.NewService(incidentRepo, taskRepo, pool)

	// Sync workers
	syncer := buildSyncer(cfg, pool, metrics, logger)
	if cfg.SourceBaseURL != "" && len(cfg.Sites) > 0 {
		w := worker.New(syncer, cfg.Sites, cfg.SyncInterval(), logger)
		w.Start(ctx)
		defer w.Stop()
	} else {
		logger.Warn().Msg("SOURCE_BASE_URL or SITES not set; sync workers disabled")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.RequestMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Unauthenticated operational endpoints
	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", metrics.PrometheusHandler())

	// Authenticated dashboard API
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		})
	}
	rateCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateCfg))

	policy.NewHandler(policySvc).RegisterRoutes(apiV1)
	incident.NewHandler(incidentSvc, syncer).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
