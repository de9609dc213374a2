package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kolodkin/aaiclick-sub000/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply every pending state-store schema migration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := store.NewMigrator(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		return m.Up()
	},
}

var migrateCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the schema's current migration version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := store.NewMigrator(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		version, dirty, err := m.Current()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	},
}

var migrateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List the migration versions recorded in schema_migrations (the current one).",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := store.NewMigrator(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		versions, err := m.History(cmd.Context())
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	},
}

var migrateUpgradeCmd = &cobra.Command{
	Use:   "upgrade <version>",
	Short: "Migrate the schema forward to an exact version.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := store.NewMigrator(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		return m.Upgrade(uint(version))
	},
}

var migrateDowngradeCmd = &cobra.Command{
	Use:   "downgrade <version>",
	Short: "Migrate the schema backward to an exact version.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := store.NewMigrator(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		return m.Downgrade(uint(version))
	},
}

func init() {
	migrateCmd.AddCommand(migrateCurrentCmd, migrateHistoryCmd, migrateUpgradeCmd, migrateDowngradeCmd)
}
