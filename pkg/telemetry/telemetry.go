// Package telemetry exports run and gate metrics over OTLP gRPC. A
// disabled provider is a complete no-op so callers never branch on
// whether telemetry is configured.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the metric provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317"
	Enabled        bool
	Insecure       bool
	ExportInterval time.Duration
}

// DefaultConfig returns defaults suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "mend",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the meter provider and the instrument set.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	logger        *slog.Logger

	runCounter      metric.Int64Counter
	gateEvaluations metric.Int64Counter
	gateFailures    metric.Int64Counter
}

// New creates a Provider. With Enabled false it returns immediately
// and every recording method is a no-op.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "telemetry"),
	}
	if !config.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	interval := config.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)

	meter := otel.Meter("mend", metric.WithInstrumentationVersion(config.ServiceVersion))
	if err := p.initInstruments(meter); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initInstruments(meter metric.Meter) error {
	var err error
	p.runCounter, err = meter.Int64Counter("mend.runs.total",
		metric.WithDescription("Completed runs by outcome status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}
	p.gateEvaluations, err = meter.Int64Counter("mend.gates.evaluations",
		metric.WithDescription("Gate results per evaluation"),
		metric.WithUnit("{gate}"),
	)
	if err != nil {
		return err
	}
	p.gateFailures, err = meter.Int64Counter("mend.gates.failures",
		metric.WithDescription("Gate failures by gate name"),
		metric.WithUnit("{gate}"),
	)
	return err
}

// RecordRun counts a completed run under its ledger status.
func (p *Provider) RecordRun(status string) {
	if p.runCounter == nil {
		return
	}
	p.runCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordGateEvaluation satisfies the gate evaluator's telemetry hook.
func (p *Provider) RecordGateEvaluation(passed, failed int, failedGates []string) {
	if p.gateEvaluations == nil {
		return
	}
	ctx := context.Background()
	p.gateEvaluations.Add(ctx, int64(passed),
		metric.WithAttributes(attribute.String("result", "pass")))
	p.gateEvaluations.Add(ctx, int64(failed),
		metric.WithAttributes(attribute.String("result", "fail")))
	for _, name := range failedGates {
		p.gateFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("gate", name)))
	}
}

// Shutdown flushes pending exports. Safe on a disabled provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
