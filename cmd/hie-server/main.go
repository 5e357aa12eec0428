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

	"github.com/ehr/hie/internal/config"
	"github.com/ehr/hie/internal/domain/authorization"
	"github.com/ehr/hie/internal/domain/claims"
	"github.com/ehr/hie/internal/domain/comms"
	"github.com/ehr/hie/internal/domain/polling"
	"github.com/ehr/hie/internal/domain/provider"
	"github.com/ehr/hie/internal/platform/auth"
	"github.com/ehr/hie/internal/platform/db"
	"github.com/ehr/hie/internal/platform/exchange"
	"github.com/ehr/hie/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hie-server",
		Short: "Exchange polling and correlation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(pollCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and poll scheduler",
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
			schema, _ := cmd.Flags().GetString("schema")
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
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
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
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

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

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, ""); err != nil {
				return err
			}
			fmt.Println("Tenant created. Apply migrations with: hie-server migrate up --schema tenant_" + name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

// pollCmd triggers one manual run from the command line, bypassing HTTP.
func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one poll against the exchange and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, _ := buildPolling(cfg, pool, logger)

			ctx, conn, err := db.AcquireScoped(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer conn.Release()

			result, err := svc.ExecutePoll(ctx, tenant, polling.TriggerManual)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s finished: %s (received=%d matched=%d unmatched=%d)\n",
				result.RunID, result.Status, result.Received, result.Matched, result.Unmatched)
			return nil
		},
	}
	cmd.Flags().String("tenant", "", "Tenant scope to poll for (defaults to DEFAULT_TENANT)")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildPolling wires the polling pipeline onto a pool.
func buildPolling(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*polling.Service, polling.Repository) {
	authRepo := authorization.NewRepoPG(pool)
	advancedRepo := authorization.NewAdvancedRepoPG(pool)
	claimRepo := claims.NewRepoPG(pool)
	commRepo := comms.NewRepoPG(pool)
	pollRepo := polling.NewRepoPG(pool)

	providers := provider.NewService(provider.NewRepoPG(pool), cfg.ExchangeLicense, logger)
	gateway := exchange.NewClient(cfg.ExchangeBaseURL, cfg.ExchangeTimeout(), logger)
	correlator := polling.NewCorrelator(authRepo, claimRepo, logger)
	updater := polling.NewUpdater(authRepo, advancedRepo, claimRepo, commRepo, logger)

	svc := polling.NewService(pool, providers, gateway, correlator, updater, pollRepo, cfg.PollPageSize, logger)
	return svc, pollRepo
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

	svc, pollRepo := buildPolling(cfg, pool, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(cfg.ExchangeTimeout() + 10*time.Second))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AdminJWTSecret)))
	}
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, auth.AuthSkipper))

	// Liveness stays reachable without credentials; the auth and tenant
	// middleware both skip it via auth.AuthSkipper.
	pollerCheck := func() (string, interface{}, bool) {
		return "poller", map[string]interface{}{
			"enabled":          cfg.PollEnabled,
			"interval_seconds": int(cfg.PollInterval().Seconds()),
		}, true
	}
	e.GET("/health", db.HealthHandler(pool, pollerCheck))

	apiV1 := e.Group("/api/v1")
	polling.NewHandler(svc, pollRepo).RegisterRoutes(apiV1)

	var sched *polling.Scheduler
	if cfg.PollEnabled {
		sched = polling.NewScheduler(svc, pollRepo, pool, cfg.DefaultTenant,
			cfg.PollInterval(), cfg.PollAbandonAfter(), logger)
		sched.Start()
	} else {
		logger.Warn().Msg("poll scheduler disabled by configuration")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("poll scheduler did not stop cleanly")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	return nil
}
