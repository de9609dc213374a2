package main

import (
	"github.com/spf13/cobra"

	"github.com/kolodkin/aaiclick-sub000/internal/clickhouse"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
	"github.com/kolodkin/aaiclick-sub000/internal/sweeper"
)

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Run long-lived background maintenance processes.",
}

var backgroundStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the refcount-zero cleanup sweeper until shutdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, shutdown := rootContext(cmd.Context(), "aaiclick-sweeper")
		defer shutdown()

		s, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return err
		}
		defer s.Close()

		conn, err := clickhouse.Open(cfg.ClickHouseAddr(), cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePassword)
		if err != nil {
			return err
		}
		defer conn.Close()

		sw := sweeper.New(s, conn, cfg.SweeperInterval, cfg.SweeperBatchSize)
		return sw.Run(ctx)
	},
}

func init() {
	backgroundCmd.AddCommand(backgroundStartCmd)
}
