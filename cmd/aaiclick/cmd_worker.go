package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kolodkin/aaiclick-sub000/internal/clickhouse"
	"github.com/kolodkin/aaiclick-sub000/internal/config"
	"github.com/kolodkin/aaiclick-sub000/internal/registry"
	"github.com/kolodkin/aaiclick-sub000/internal/snowflake"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
	"github.com/kolodkin/aaiclick-sub000/internal/taskrun"
	"github.com/kolodkin/aaiclick-sub000/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run or inspect orchestrator worker processes.",
}

var workerMaxTasks int

var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Register this process as a worker and claim/execute tasks until shutdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, shutdown := rootContext(cmd.Context(), "aaiclick-worker")
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

		gen, err := snowflake.NewGenerator(cfg.MachineID)
		if err != nil {
			return err
		}

		reg := registerEntrypoints()
		runner := taskrun.New(reg, conn, gen, cfg.LogDir)

		w, err := worker.New(gen, s, runner, nil, worker.Config{
			HeartbeatInterval: cfg.WorkerHeartbeatInterval,
			PollInterval:      cfg.WorkerPollInterval,
			MaxEmptyPolls:     maxEmptyPolls(workerMaxTasks, cfg),
		})
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered worker and its status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return err
		}
		defer s.Close()

		workers, err := s.ListWorkers(ctx)
		if err != nil {
			return err
		}
		for _, w := range workers {
			fmt.Printf("%d\t%s\t%s\tcompleted=%d\tfailed=%d\n", w.ID, w.Hostname, w.Status, w.TasksCompleted, w.TasksFailed)
		}
		return nil
	},
}

func init() {
	workerStartCmd.Flags().IntVar(&workerMaxTasks, "max-tasks", 0, "exit after this many consecutive empty claim polls (0 = run forever)")
	workerCmd.AddCommand(workerStartCmd, workerListCmd)
}

// maxEmptyPolls lets --max-tasks override the configured
// WORKER_MAX_EMPTY_POLLS for one-shot/bounded worker invocations.
func maxEmptyPolls(flagValue int, cfg *config.Config) int {
	if flagValue > 0 {
		return flagValue
	}
	return cfg.WorkerMaxEmptyPolls
}

// registerEntrypoints binds every dotted entrypoint string this process
// knows how to execute. Production deployments register their task
// callbacks here, or via an equivalent init-time call linked into this
// binary.
func registerEntrypoints() *registry.Registry {
	return registry.New()
}
