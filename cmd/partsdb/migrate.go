package main

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/pcparts/partsdb/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: "Applies the embedded SQL migrations. SQLite databases are created from the " +
			"models instead (database.auto_migrate) and are not handled here.",
	}

	withMigrator := func(fn func(cmd *cobra.Command, m *models.Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := setup(global)
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.Database.Driver != "postgres" {
				return codeError(exitUsage, "migrations require the postgres driver (configured: %s)", e.cfg.Database.Driver)
			}

			db, err := sql.Open("postgres", e.cfg.Database.URL())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			m, err := models.NewMigrator(db, e.log)
			if err != nil {
				return err
			}
			defer func() {
				if err := m.Close(); err != nil {
					e.log.Warn("Failed to close migrator", zap.Error(err))
				}
			}()

			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, m *models.Migrator, _ []string) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, m *models.Migrator, _ []string) error {
				return m.Down()
			}),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations; a negative n rolls back",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, m *models.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return codeError(exitUsage, "invalid step count %q", args[0])
				}
				return m.Steps(n)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, m *models.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < -1 {
					return codeError(exitUsage, "invalid version %q", args[0])
				}
				return m.Force(v)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *models.Migrator, _ []string) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if dirty {
					fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty)\n", v)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}),
		},
	)
	return cmd
}
