// Package telemetry provides the ambient observability stack: structured
// logging, Prometheus metrics, and OpenTelemetry tracing for matrix runs.
package telemetry

import (
	"fmt"
	"time"
)

// Config is the telemetry configuration for a gridci process.
type Config struct {
	// ServiceName identifies the process in traces and metrics.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Tracing configures span export.
	Tracing TracingConfig

	// Metrics configures the Prometheus registry and status server.
	Metrics MetricsConfig
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string

	// Format is "console" or "json".
	Format string

	// Output is "stdout", "stderr", or a file path.
	Output string
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool

	// Exporter is "stdout", "otlp", or "none".
	Exporter string

	// Endpoint is the OTLP gRPC endpoint, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS on the OTLP connection.
	Insecure bool

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64

	// ExportTimeout bounds batch export.
	ExportTimeout time.Duration
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled turns the registry on.
	Enabled bool

	// ListenAddress is where the status server binds in watch mode.
	ListenAddress string

	// Namespace prefixes every metric name.
	Namespace string
}

// DefaultConfig returns the defaults for a CLI invocation.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "gridci",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9290",
			Namespace:     "gridci",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "otlp", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("trace sampling rate must be between 0 and 1, got %f", c.Tracing.SamplingRate)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires an endpoint")
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}

	return nil
}
