package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	pipelineRuns     metric.Int64Counter
	pipelineFailures metric.Int64Counter
	itemsSubmitted   metric.Int64Counter
	publicEvents     metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "guidely"
	}
	meter := provider.Meter(name)

	pipelineRuns, err := meter.Int64Counter("guidely_pipeline_runs_total")
	if err != nil {
		return nil, err
	}
	pipelineFailures, err := meter.Int64Counter("guidely_pipeline_failures_total")
	if err != nil {
		return nil, err
	}
	itemsSubmitted, err := meter.Int64Counter("guidely_items_submitted_total")
	if err != nil {
		return nil, err
	}
	publicEvents, err := meter.Int64Counter("guidely_public_events_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("guidely_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		pipelineRuns:     pipelineRuns,
		pipelineFailures: pipelineFailures,
		itemsSubmitted:   itemsSubmitted,
		publicEvents:     publicEvents,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordPipelineRun counts a finished pipeline run by outcome.
func (m *Metrics) RecordPipelineRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordPipelineFailure counts a stage failure.
func (m *Metrics) RecordPipelineFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.pipelineFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", strings.TrimSpace(stage)),
	))
}

// RecordItemSubmitted counts accepted ingestion requests.
func (m *Metrics) RecordItemSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.itemsSubmitted.Add(ctx, 1)
}

// RecordPublicEvent counts scan/completion/question recordings.
func (m *Metrics) RecordPublicEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.publicEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

// RecordRateLimitDenied counts throttled public requests.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
