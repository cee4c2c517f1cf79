// Package observability provides OpenTelemetry tracing and RED
// (Rate, Errors, Duration) metrics for the node surface, and a
// node.Node wrapper that instruments every operation with them.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317"; empty disables telemetry
	SampleRate     float64
	BatchTimeout   time.Duration
	Insecure       bool
}

// DefaultConfig returns defaults with telemetry disabled (no endpoint set).
func DefaultConfig() Config {
	return Config{
		ServiceName:    "b3nd-node",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Insecure:       true,
	}
}

// Provider owns the trace/metric providers and the node-op RED metrics.
type Provider struct {
	enabled        bool
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// New builds a Provider. When cfg.OTLPEndpoint is empty, it returns a
// no-op Provider that never dials anything (dev mode).
func New(ctx context.Context, cfg Config) (*Provider, error) {
	logger := slog.Default().With("component", "observability")
	p := &Provider{logger: logger}
	if cfg.OTLPEndpoint == "" {
		logger.InfoContext(ctx, "observability disabled: no OTLP endpoint configured")
		return p, nil
	}
	p.enabled = true

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, cfg, res); err != nil {
		return nil, fmt.Errorf("observability: trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, cfg, res); err != nil {
		return nil, fmt.Errorf("observability: metric provider: %w", err)
	}

	p.tracer = otel.Tracer("b3nd.node", trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter("b3nd.node", metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if err := p.initREDMetrics(); err != nil {
		return nil, fmt.Errorf("observability: RED metrics: %w", err)
	}

	logger.InfoContext(ctx, "observability initialized",
		"service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, cfg Config, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	if p.requestCounter, err = p.meter.Int64Counter("b3nd.node.requests.total",
		metric.WithDescription("Total node operations processed"), metric.WithUnit("{operation}")); err != nil {
		return err
	}
	if p.errorCounter, err = p.meter.Int64Counter("b3nd.node.errors.total",
		metric.WithDescription("Total node operations that returned an error"), metric.WithUnit("{error}")); err != nil {
		return err
	}
	if p.durationHist, err = p.meter.Float64Histogram("b3nd.node.duration",
		metric.WithDescription("Node operation duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0)); err != nil {
		return err
	}
	if p.activeOperations, err = p.meter.Int64UpDownCounter("b3nd.node.operations.active",
		metric.WithDescription("Node operations currently in flight"), metric.WithUnit("{operation}")); err != nil {
		return err
	}
	return nil
}

// Shutdown flushes and stops the providers. Safe to call on a disabled Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// track starts a span and the RED bookkeeping for one node operation,
// returning a function to call with the operation's error (nil on success).
func (p *Provider) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !p.enabled {
		return ctx, func(error) {}
	}
	start := time.Now()
	attrs = append(attrs, attribute.String("b3nd.op", op))
	ctx, span := p.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	p.activeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, func(err error) {
		p.activeOperations.Add(ctx, -1, metric.WithAttributes(attrs...))
		p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		if err != nil {
			span.RecordError(err)
			p.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		span.End()
	}
}

// Node wraps a backend with tracing/RED metrics for every operation.
// It routes each op through Provider.track, a single span-plus-counters
// helper, as a full node.Node decorator so every
// op on the real stack gets a span without call sites instrumenting
// themselves by hand.
type Node struct {
	backend  node.Node
	provider *Provider
}

// Wrap returns backend instrumented with provider. If provider is
// disabled (no OTLP endpoint configured), every call is a direct
// passthrough with no tracing overhead beyond a single bool check.
func Wrap(backend node.Node, provider *Provider) *Node {
	return &Node{backend: backend, provider: provider}
}

var _ node.Node = (*Node)(nil)

func (n *Node) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	ctx, done := n.provider.track(ctx, "receive", attribute.String("b3nd.uri", in.URI))
	res := n.backend.Receive(ctx, in)
	done(errFromReceive(res))
	return res
}

func (n *Node) Read(ctx context.Context, uri string) node.ReadResult {
	ctx, done := n.provider.track(ctx, "read", attribute.String("b3nd.uri", uri))
	res := n.backend.Read(ctx, uri)
	done(errFromRead(res))
	return res
}

func (n *Node) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	ctx, done := n.provider.track(ctx, "read-multi", attribute.Int("b3nd.count", len(uris)))
	res := n.backend.ReadMulti(ctx, uris)
	done(nil)
	return res
}

func (n *Node) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	ctx, done := n.provider.track(ctx, "list", attribute.String("b3nd.uri", uri))
	res := n.backend.List(ctx, uri, opts)
	var err error
	if res.Error != nil {
		err = res.Error
	}
	done(err)
	return res
}

func (n *Node) Delete(ctx context.Context, uri string) node.DeleteResult {
	ctx, done := n.provider.track(ctx, "delete", attribute.String("b3nd.uri", uri))
	res := n.backend.Delete(ctx, uri)
	var err error
	if !res.OK && res.Error != nil {
		err = res.Error
	}
	done(err)
	return res
}

func (n *Node) Health(ctx context.Context) node.HealthResult {
	return n.backend.Health(ctx)
}

func (n *Node) ListPrograms(ctx context.Context) []string {
	return n.backend.ListPrograms(ctx)
}

func (n *Node) Close() error {
	return n.backend.Close()
}

func errFromReceive(res node.ReceiveResult) error {
	if !res.Accepted && res.Error != nil {
		return res.Error
	}
	return nil
}

func errFromRead(res node.ReadResult) error {
	if !res.OK && res.Error != nil {
		return res.Error
	}
	return nil
}
