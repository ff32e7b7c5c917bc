package main

import (
	"time"

	"github.com/diewo77/go-procurement/internal/db"
	"github.com/diewo77/go-procurement/internal/jobs"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, conn, err := bootstrap()
			if err != nil {
				return err
			}
			if err := db.Migrate(conn); err != nil {
				log.Error().Err(err).Msg("migration failed")
				return err
			}
			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed permissions, system profiles, the default tenant and the admin user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, conn, err := bootstrap()
			if err != nil {
				return err
			}
			if err := db.Seed(conn, cfg.App.DefaultTenant, cfg.App.AdminEmail, cfg.App.AdminPassword); err != nil {
				log.Error().Err(err).Msg("seeding failed")
				return err
			}
			log.Info().Msg("seeding completed successfully")
			return nil
		},
	}
}

func newMigratePermissionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-permissions",
		Short: "Convert legacy role rows into profiles with normalised permissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, conn, err := bootstrap()
			if err != nil {
				return err
			}
			report, err := db.MigrateLegacyPermissions(conn, log)
			if err != nil {
				log.Error().Err(err).Msg("permission migration failed")
				return err
			}
			log.Info().
				Int("migrated", report.Migrated).
				Int("skipped", report.Skipped).
				Int("failed", report.Failed).
				Msg("permission migration finished")
			return nil
		},
	}
}

func newScoreCommand() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score every active supplier for a period (default: last month)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, conn, err := bootstrap()
			if err != nil {
				return err
			}
			if period == "" {
				period = jobs.LastPeriod(time.Now())
			}
			run, err := services.NewScoringService(conn, log).RunPeriod(cmd.Context(), period)
			if err != nil {
				log.Error().Err(err).Str("period", period).Msg("scoring failed")
				return err
			}
			for _, res := range run.Results {
				log.Info().
					Uint("supplier_id", res.SupplierID).
					Str("supplier", res.SupplierName).
					Int("total", res.Total).
					Str("decision", res.Decision).
					Send()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "Period as YYYY-MM")
	return cmd
}

func newAlertsCommand() *cobra.Command {
	var (
		period          string
		threshold, drop int
	)
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate and store supplier alerts for a period (default: last month)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, conn, err := bootstrap()
			if err != nil {
				return err
			}
			if period == "" {
				period = jobs.LastPeriod(time.Now())
			}
			if threshold <= 0 {
				threshold = cfg.Jobs.AlertThreshold
			}
			if drop <= 0 {
				drop = cfg.Jobs.AlertDrop
			}
			alerts, err := services.NewAlertService(conn, log).Evaluate(cmd.Context(), period, threshold, drop)
			if err != nil {
				log.Error().Err(err).Str("period", period).Msg("alert evaluation failed")
				return err
			}
			for _, a := range alerts {
				log.Warn().
					Uint("supplier_id", a.SupplierID).
					Str("type", a.Type).
					Str("severity", a.Severity).
					Msg(a.Message)
			}
			log.Info().Str("period", period).Int("alerts", len(alerts)).Msg("alerts evaluated")
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "Period as YYYY-MM")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Score below which a threshold alert is raised (default from config)")
	cmd.Flags().IntVar(&drop, "drop", 0, "Point drop against the previous period that raises an alert (default from config)")
	return cmd
}
