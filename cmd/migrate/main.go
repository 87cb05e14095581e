package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/migrate"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and author goose migrations for the marketplace schema",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		dbCommand("up", "Apply every pending migration", cobra.NoArgs, func(ctx context.Context, sqlDB *sql.DB, driver string, _ []string) error {
			return migrate.Run(ctx, sqlDB, driver, "up")
		}),
		dbCommand("down", "Roll back the latest migration", cobra.NoArgs, func(ctx context.Context, sqlDB *sql.DB, driver string, _ []string) error {
			return migrate.Run(ctx, sqlDB, driver, "down")
		}),
		dbCommand("status", "Print applied and pending migrations", cobra.NoArgs, func(ctx context.Context, sqlDB *sql.DB, driver string, _ []string) error {
			return migrate.Run(ctx, sqlDB, driver, "status")
		}),
		dbCommand("version <YYYYMMDDHHMMSS>", "Migrate up or down to an exact version", cobra.ExactArgs(1), func(ctx context.Context, sqlDB *sql.DB, driver string, args []string) error {
			return migrate.MigrateToVersion(ctx, sqlDB, driver, args[0])
		}),
		newCreateCmd(),
		newValidateCmd(),
	)
	return root
}

type dbAction func(ctx context.Context, sqlDB *sql.DB, driver string, args []string) error

// dbCommand wraps an action that needs a live database connection.
func dbCommand(use, short string, args cobra.PositionalArgs, action dbAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logg, err := bootstrap()
			if err != nil {
				return err
			}
			ctx := logg.WithFields(cmd.Context(), map[string]any{
				"env": cfg.App.Env,
				"cmd": cmd.Name(),
			})

			dbClient, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				logg.Error(ctx, "resource not working: database", err)
				return err
			}
			defer dbClient.Close()

			sqlDB, err := dbClient.DB().DB()
			if err != nil {
				logg.Error(ctx, "resource not working: sql database", err)
				return err
			}

			ctx = logg.WithField(ctx, "dir", migrate.DirFor(dbClient.Driver()))
			logg.Info(ctx, "migrate ready")
			if err := action(ctx, sqlDB, dbClient.Driver(), args); err != nil {
				logg.Error(ctx, "migration command failed", err)
				return err
			}
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a timestamped SQL migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.CreateSQLMigration(dir, args[0])
			if err != nil {
				return fmt.Errorf("create migration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", migrate.DefaultDir, "directory the migration is written to")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check migration file names and goose annotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if dir == "" {
				err = migrate.ValidateEmbedded()
			} else {
				err = migrate.ValidateDir(dir)
			}
			if err != nil {
				return fmt.Errorf("migration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "validate an on-disk directory instead of the embedded set")
	return cmd
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return cfg, logg, nil
}
