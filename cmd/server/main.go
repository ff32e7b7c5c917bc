package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/config"
	"github.com/diewo77/go-procurement/internal/db"
	"github.com/diewo77/go-procurement/internal/jobs"
	"github.com/diewo77/go-procurement/internal/logger"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/policy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "procurement",
		Short:         "Procurement approval, negotiation and supplier evaluation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Default to server mode when no subcommand is provided
		RunE: runServer,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a configuration file (yaml, json, toml or .env)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background jobs",
		RunE:  runServer,
	})
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newSeedCommand())
	root.AddCommand(newMigratePermissionsCommand())
	root.AddCommand(newScoreCommand())
	root.AddCommand(newAlertsCommand())
	return root
}

// bootstrap loads the configuration, installs the logger and opens the
// database.
func bootstrap() (*config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	level := cfg.App.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.Init(cfg.App.Dev, level)

	conn, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return nil, log, nil, err
	}
	return cfg, log, conn, nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, log, conn, err := bootstrap()
	if err != nil {
		return err
	}

	// Run migrations on startup if enabled
	if cfg.App.Migrations {
		if err := db.Migrate(conn); err != nil {
			log.Error().Err(err).Msg("migration failed")
			return err
		}
		log.Info().Msg("migrations completed")
	}

	// Seed default data (profiles, permissions, tenant, admin)
	if err := db.Seed(conn, cfg.App.DefaultTenant, cfg.App.AdminEmail, cfg.App.AdminPassword); err != nil {
		log.Error().Err(err).Msg("seeding failed")
		return err
	}

	auth.SetSecret(cfg.Server.SessionSecret)
	// Configure auth verifier to check if user exists in DB
	auth.SetUserVerifier(func(ctx context.Context, uid uint) bool {
		var count int64
		conn.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Count(&count)
		return count > 0
	})

	routerCfg := policy.NewRouterConfig(conn, cfg, log)
	appHandler := NewApp(routerCfg, log)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler, err = jobs.New(cfg.Jobs, jobs.Deps{
			Scoring:  routerCfg.Scoring,
			Alerts:   routerCfg.Alerts,
			Outbox:   routerCfg.Outbox,
			Cleaners: []jobs.Cleaner{routerCfg.PortalLimiter, routerCfg.LoginLimiter, routerCfg.AuthGate.CacheResolver},
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("invalid job configuration")
			return err
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      appHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Bool("dev", cfg.App.Dev).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			return err
		}
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	if scheduler != nil {
		if err := scheduler.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("jobs still running at shutdown")
		}
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}
