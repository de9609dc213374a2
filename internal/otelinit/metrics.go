package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Metrics holds the instruments shared across the claim loop, worker loop,
// lifecycle handlers, and the cleanup sweeper.
type Metrics struct {
	RetryAttempts          metric.Int64Counter
	CircuitOpenTransitions metric.Int64Counter
	ClaimAttempts          metric.Int64Counter
	ClaimEmpty             metric.Int64Counter
	TasksCompleted         metric.Int64Counter
	TasksFailed            metric.Int64Counter
	TaskDuration           metric.Float64Histogram
	TablesDropped          metric.Int64Counter
}

// InitMetrics sets up a global OTLP metrics exporter and returns a shutdown
// function alongside the common instrument set.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, m Metrics) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("service", service),
	))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = resolveEndpoint()
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, createCommonInstruments()
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, createCommonInstruments()
}

func createCommonInstruments() Metrics {
	meter := otel.Meter("aaiclick")
	retry, _ := meter.Int64Counter("aaiclick_resilience_retry_attempts_total")
	circuit, _ := meter.Int64Counter("aaiclick_resilience_circuit_open_total")
	claimAttempts, _ := meter.Int64Counter("aaiclick_claim_attempts_total")
	claimEmpty, _ := meter.Int64Counter("aaiclick_claim_empty_total")
	tasksCompleted, _ := meter.Int64Counter("aaiclick_tasks_completed_total")
	tasksFailed, _ := meter.Int64Counter("aaiclick_tasks_failed_total")
	taskDuration, _ := meter.Float64Histogram("aaiclick_task_duration_ms")
	tablesDropped, _ := meter.Int64Counter("aaiclick_tables_dropped_total")
	return Metrics{
		RetryAttempts:          retry,
		CircuitOpenTransitions: circuit,
		ClaimAttempts:          claimAttempts,
		ClaimEmpty:             claimEmpty,
		TasksCompleted:         tasksCompleted,
		TasksFailed:            tasksFailed,
		TaskDuration:           taskDuration,
		TablesDropped:          tablesDropped,
	}
}
