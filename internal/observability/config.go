package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/taxledger/internal/config"
)

const defaultSamplingRatio = 0.1

// Config is the telemetry view of the application config. OTEL_* variables
// override the application defaults so the standard collector settings work.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Verbose     bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "taxledger"
	}

	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if v := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		endpoint = v
	}

	protocol := lookup("OTEL_EXPORTER_OTLP_PROTOCOL")
	if v := lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); v != "" {
		protocol = v
	}

	enabled := endpoint != ""
	if v, err := strconv.ParseBool(lookup("OTEL_ENABLED")); err == nil {
		enabled = v
	}

	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		Verbose:              cfg.LogLevel == "debug" || !cfg.IsProduction(),
		OtelEnabled:          enabled,
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: normalizeProtocol(protocol),
		OtelSamplingRatio:    samplingRatio(lookup("OTEL_SAMPLING_RATIO")),
	}
}

// normalizeProtocol folds the OTLP protocol names onto the two exporters
// the tracing provider builds.
func normalizeProtocol(raw string) string {
	switch strings.ToLower(raw) {
	case "http", "http/protobuf", "http/json":
		return "http"
	default:
		return "grpc"
	}
}

func samplingRatio(raw string) float64 {
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultSamplingRatio
	}
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
