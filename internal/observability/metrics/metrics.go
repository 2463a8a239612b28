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
	taxCalculations   metric.Int64Counter
	nexusDegraded     metric.Int64Counter
	glsyncTransitions metric.Int64Counter
	glsyncOrphans     metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "taxledger"
	}
	meter := provider.Meter(name)

	taxCalculations, err := meter.Int64Counter("tax_calculations_total",
		metric.WithDescription("Tax calculations by outcome."))
	if err != nil {
		return nil, err
	}
	nexusDegraded, err := meter.Int64Counter("nexus_degraded_total",
		metric.WithDescription("Nexus lookups answered as no-nexus because the store failed."))
	if err != nil {
		return nil, err
	}
	glsyncTransitions, err := meter.Int64Counter("glsync_transitions_total",
		metric.WithDescription("Journal entry state transitions by status."))
	if err != nil {
		return nil, err
	}
	glsyncOrphans, err := meter.Int64Counter("glsync_orphans_swept_total",
		metric.WithDescription("Pending journal entries failed by the orphan sweep."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		taxCalculations:   taxCalculations,
		nexusDegraded:     nexusDegraded,
		glsyncTransitions: glsyncTransitions,
		glsyncOrphans:     glsyncOrphans,
	}, nil
}

// NewNoop returns instruments backed by the noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordTaxCalculation counts a calculation with its outcome ("ok" or "error").
func (m *Metrics) RecordTaxCalculation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.taxCalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNexusDegraded counts a fail-open nexus lookup.
func (m *Metrics) RecordNexusDegraded(ctx context.Context) {
	if m == nil {
		return
	}
	m.nexusDegraded.Add(ctx, 1)
}

// RecordSyncTransition counts a journal entry entering status.
func (m *Metrics) RecordSyncTransition(ctx context.Context, status, referenceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("reference_type", strings.TrimSpace(referenceType)),
	)
	m.glsyncTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrphansSwept counts entries failed by one sweep run.
func (m *Metrics) RecordOrphansSwept(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.glsyncOrphans.Add(ctx, int64(count))
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

// tenant_id and reference_id are deliberately absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":        {},
	"status":         {},
	"reference_type": {},
	"route":          {},
	"method":         {},
	"status_code":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
