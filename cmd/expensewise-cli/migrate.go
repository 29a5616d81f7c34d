package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"expensewise/internal/backend"
	"expensewise/internal/store/sqlite"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
		Long:  `Apply, roll back or inspect the embedded SQLite migrations. Other backends need no schema.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := sqlitePath()
			if err != nil {
				return err
			}
			if err := sqlite.RunMigrations(path); err != nil {
				return err
			}
			return printVersion(cmd, path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := sqlitePath()
			if err != nil {
				return err
			}
			if err := sqlite.MigrateDown(path); err != nil {
				return err
			}
			return printVersion(cmd, path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := sqlitePath()
			if err != nil {
				return err
			}
			return printVersion(cmd, path)
		},
	})

	return cmd
}

func sqlitePath() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if backend.BackendType(cfg.DataBackend) != backend.SQLiteBackend {
		return "", fmt.Errorf("migrations apply to the sqlite backend only (backend is %q)", cfg.DataBackend)
	}
	return cfg.SQLiteDBPath, nil
}

func printVersion(cmd *cobra.Command, path string) error {
	v, dirty, err := sqlite.MigrationVersion(path)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (%s)\n", path, v, state)
	return nil
}
