// Package config loads the orchestrator's runtime configuration from the
// environment (optionally via a local .env file).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config holds every environment-driven knob the orchestrator's CLI
// subcommands consume.
type Config struct {
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseDB       string

	LogDir   string
	JSONLog  bool
	LogLevel string

	WorkerHeartbeatInterval time.Duration
	WorkerTaskTimeout       time.Duration
	WorkerMaxRetries        int
	WorkerPollInterval      time.Duration
	WorkerMaxEmptyPolls     int

	SweeperInterval  time.Duration
	SweeperBatchSize int

	// MachineID seeds the snowflake generator's machine-id bits (0..1023).
	// Unset in single-node development; must be distinct per process across
	// a real multi-node deployment to guarantee ID uniqueness.
	MachineID int64
}

// FromEnv populates a Config from the process environment, applying the
// same defaults named in the external interface contract.
func FromEnv() *Config {
	c := &Config{
		PostgresHost:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvOrDefaultInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnvOrDefault("POSTGRES_USER", "aaiclick"),
		PostgresPassword: getEnvOrDefault("POSTGRES_PASSWORD", "secret"),
		PostgresDB:       getEnvOrDefault("POSTGRES_DB", "aaiclick"),
		PostgresSSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		ClickHouseHost:     getEnvOrDefault("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvOrDefaultInt("CLICKHOUSE_PORT", 9000),
		ClickHouseUser:     getEnvOrDefault("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnvOrDefault("CLICKHOUSE_PASSWORD", ""),
		ClickHouseDB:       getEnvOrDefault("CLICKHOUSE_DB", "aaiclick"),

		LogDir:   getEnvOrDefault("AAICLICK_LOG_DIR", ""),
		JSONLog:  getEnvOrDefault("AAICLICK_JSON_LOG", "false") == "true",
		LogLevel: getEnvOrDefault("AAICLICK_LOG_LEVEL", "INFO"),

		WorkerHeartbeatInterval: getEnvOrDefaultDuration("WORKER_HEARTBEAT_INTERVAL", 10*time.Second),
		WorkerTaskTimeout:       getEnvOrDefaultDuration("WORKER_TASK_TIMEOUT", 30*time.Minute),
		WorkerMaxRetries:        getEnvOrDefaultInt("WORKER_MAX_RETRIES", 0),
		WorkerPollInterval:      getEnvOrDefaultDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		WorkerMaxEmptyPolls:     getEnvOrDefaultInt("WORKER_MAX_EMPTY_POLLS", 0),

		SweeperInterval:  getEnvOrDefaultDuration("SWEEPER_INTERVAL", 30*time.Second),
		SweeperBatchSize: getEnvOrDefaultInt("SWEEPER_BATCH_SIZE", 100),

		MachineID: int64(getEnvOrDefaultInt("AAICLICK_MACHINE_ID", os.Getpid()%1024)),
	}
	return c
}

// Validate checks for required fields and resolves the log directory to an
// OS default when unset.
func (c *Config) Validate() error {
	if c.PostgresDB == "" {
		return errors.New("POSTGRES_DB must not be empty")
	}
	if c.ClickHouseDB == "" {
		return errors.New("CLICKHOUSE_DB must not be empty")
	}
	if c.MachineID < 0 || c.MachineID > 1023 {
		return errors.New("AAICLICK_MACHINE_ID must be between 0 and 1023")
	}
	if c.LogDir == "" {
		dir, err := defaultLogDir()
		if err != nil {
			return errors.Wrap(err, "resolving default log directory")
		}
		c.LogDir = dir
	}
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating log directory %s", c.LogDir)
	}
	return nil
}

// PostgresDSN renders the libpq connection string pgx expects.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSLMode)
}

// ClickHouseAddr renders the host:port pair the clickhouse-go driver expects.
func (c *Config) ClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouseHost, c.ClickHousePort)
}

func defaultLogDir() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".aaiclick", "logs"), nil
	}
	return "/var/log/aaiclick", nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
