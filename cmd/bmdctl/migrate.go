package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibh-daai/bone-mineral-density/internal/database"
)

func newMigrateCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	runner := func() (*database.MigrationRunner, error) {
		cm, logger, err := global.load()
		if err != nil {
			return nil, err
		}
		return database.NewMigrationRunner(cm.GetDatabaseURL(), cm.GetDatabaseConfig().MigrationsPath, logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mr, err := runner()
			if err != nil {
				return err
			}
			defer mr.Close()
			return mr.Up(cmd.Context())
		},
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mr, err := runner()
			if err != nil {
				return err
			}
			defer mr.Close()
			return mr.Down(cmd.Context())
		},
	}, &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mr, err := runner()
			if err != nil {
				return err
			}
			defer mr.Close()
			v, dirty, err := mr.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	})
	return cmd
}
