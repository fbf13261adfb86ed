package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-service/internal/config"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
	"quiz-session-service/internal/logging"
)

// NewMigrateCmd applies database migrations; subcommands report or undo them.
func NewMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator, log logrus.FieldLogger) error {
				return applyMigrations(ctx, m, log)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator, _ logrus.FieldLogger) error {
				ms, err := m.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, mig := range ms {
					state := "pending"
					if mig.IsApplied() {
						state = fmt.Sprintf("applied (group %d)", mig.GroupID)
					}
					fmt.Fprintf(out, "%s\t%s\n", mig.Name, state)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator, log logrus.FieldLogger) error {
				group, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if group.IsZero() {
					log.Info("nothing to roll back")
					return nil
				}
				log.WithField("group", group.String()).Info("rolled back")
				return nil
			})
		},
	})
	return cmd
}

func runMigrations(ctx context.Context, configPath string) error {
	return withMigrator(ctx, configPath, applyMigrations)
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *migrate.Migrator, logrus.FieldLogger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	db := openBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, migrator, log)
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// migrateDB brings db up to date; the server calls it before serving.
func migrateDB(ctx context.Context, db *bun.DB, log logrus.FieldLogger) error {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	return applyMigrations(ctx, migrator, log)
}

func applyMigrations(ctx context.Context, migrator *migrate.Migrator, log logrus.FieldLogger) error {
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("database schema up to date")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations applied")
	return nil
}
