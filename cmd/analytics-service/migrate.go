package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the analytics schema",
	}

	withMigrator := func(run func(cmd *cobra.Command, m *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			pg, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			m, err := db.NewMigrator(pg)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			return run(cmd, m)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, m *db.Migrator) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration, dropping the analytics schema",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, m *db.Migrator) error {
				return m.Down()
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *db.Migrator) error {
				version, dirty, ok, err := m.Version()
				if err != nil {
					return err
				}
				if !ok {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return err
			}),
		},
	)
	return cmd
}
