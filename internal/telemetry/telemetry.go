// Package telemetry configures OpenTelemetry tracing and metrics for the
// process.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "github.com/irfndi/celebrum-arb-monitor"
	ServiceVersion = "1.0.0"
)

// Exporter names
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// TelemetryConfig holds configuration for telemetry
type TelemetryConfig struct {
	Enabled        bool
	Exporter       string
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
	MetricInterval time.Duration
	// StdoutWriter receives spans and metrics of the stdout exporter; nil means os.Stdout
	StdoutWriter io.Writer
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:        true,
		Exporter:       ExporterOTLP,
		OTLPEndpoint:   "http://localhost:4318",
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "development",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
		MetricInterval: 60 * time.Second,
	}
}

// Provider holds the telemetry providers
type Provider struct {
	Shutdown      func(context.Context) error
	meterProvider metric.MeterProvider
	logger        *logrus.Logger
}

// Meter returns a named meter of the installed meter provider, or of the
// global one when telemetry is disabled
func (p *Provider) Meter(name string) metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(name)
	}
	return p.meterProvider.Meter(name)
}

// InitTelemetryWithProvider installs the global tracer and meter providers
// and the propagator. A disabled config yields a provider whose Shutdown is a
// no-op.
func InitTelemetryWithProvider(ctx context.Context, config *TelemetryConfig, logger *logrus.Logger) (*Provider, error) {
	if config == nil || !config.Enabled {
		return &Provider{Shutdown: func(context.Context) error { return nil }, logger: logger}, nil
	}
	defaults := DefaultConfig()
	if config.ServiceName == "" {
		config.ServiceName = defaults.ServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = defaults.ServiceVersion
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = defaults.BatchTimeout
	}
	if config.MaxExportBatch <= 0 {
		config.MaxExportBatch = defaults.MaxExportBatch
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = defaults.MaxQueueSize
	}
	if config.SampleRate <= 0 {
		config.SampleRate = defaults.SampleRate
	}
	if config.MetricInterval <= 0 {
		config.MetricInterval = defaults.MetricInterval
	}

	exporter, err := newExporter(ctx, config)
	if err != nil {
		return nil, err
	}
	metricExporter, err := newMetricExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))),
	)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(config.MetricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"exporter": config.Exporter,
			"endpoint": config.OTLPEndpoint,
			"service":  config.ServiceName,
		}).Info("Telemetry initialized")
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}
	return &Provider{Shutdown: shutdown, meterProvider: meterProvider, logger: logger}, nil
}

func newExporter(ctx context.Context, config *TelemetryConfig) (sdktrace.SpanExporter, error) {
	if strings.EqualFold(config.Exporter, ExporterStdout) {
		writer := config.StdoutWriter
		if writer == nil {
			writer = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	}

	hostport, urlPath, insecure, _, err := normalizeOTLPEndpoint(config.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLPEndpoint: %w", err)
	}
	options := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(hostport),
		otlptracehttp.WithURLPath(urlPath),
	}
	if insecure {
		options = append(options, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newMetricExporter(ctx context.Context, config *TelemetryConfig) (sdkmetric.Exporter, error) {
	if strings.EqualFold(config.Exporter, ExporterStdout) {
		writer := config.StdoutWriter
		if writer == nil {
			writer = os.Stdout
		}
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		return exporter, nil
	}

	hostport, urlPath, insecure, _, err := normalizeOTLPEndpoint(config.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLPEndpoint: %w", err)
	}
	options := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(hostport),
		otlpmetrichttp.WithURLPath(metricsURLPath(urlPath)),
	}
	if insecure {
		options = append(options, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return exporter, nil
}

// metricsURLPath swaps the traces suffix of a normalized path for /v1/metrics
func metricsURLPath(tracesPath string) string {
	return strings.TrimSuffix(tracesPath, "/v1/traces") + "/v1/metrics"
}

// normalizeOTLPEndpoint splits a collector base URL into the parts the HTTP
// exporter wants and appends /v1/traces unless already present
func normalizeOTLPEndpoint(endpoint string) (hostport, urlPath string, insecure bool, resolved string, err error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", "", false, "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", false, "", errors.New("endpoint must start with http:// or https://")
	}
	if parsed.Host == "" {
		return "", "", false, "", errors.New("endpoint has no host")
	}

	urlPath = strings.TrimSuffix(parsed.Path, "/")
	if !strings.HasSuffix(urlPath, "/v1/traces") {
		urlPath += "/v1/traces"
	}
	insecure = parsed.Scheme == "http"
	resolved = parsed.Scheme + "://" + parsed.Host + urlPath
	return parsed.Host, urlPath, insecure, resolved, nil
}

// GetTracer returns a named tracer from the global provider
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// GetHTTPTracer returns the tracer for HTTP handlers
func GetHTTPTracer() trace.Tracer {
	return GetTracer(ServiceName + "/http")
}

// GetJobTracer returns the tracer for scheduled jobs
func GetJobTracer() trace.Tracer {
	return GetTracer(ServiceName + "/jobs")
}

// StartSpan starts a span with the given tracer
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
