package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	dbconfig "globalchat/pkg/database"
)

var errDownNotConfirmed = errors.New("refusing to revert migrations without --yes")

var migrateConfirm bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *dbconfig.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert every applied migration (drops all data)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !migrateConfirm {
			return errDownNotConfirmed
		}
		return withMigrator(func(m *dbconfig.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *dbconfig.Migrator) error {
			return printVersion(cmd, m)
		})
	},
}

func init() {
	migrateDownCmd.Flags().BoolVar(&migrateConfirm, "yes", false, "confirm reverting every migration")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrator(fn func(*dbconfig.Migrator) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := dbconfig.NewMigrator(cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *dbconfig.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
