// Package observability wires the process-wide logging pipeline.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "pantry-agent"

var (
	mu       sync.Mutex
	provider *sdklog.LoggerProvider
)

// Instrument configures the process-wide slog default.
//
// Formats "text" and "json" log straight to stdout at the given level.
// Format "otlp" routes records through the OpenTelemetry log pipeline: an
// OTLP exporter (gRPC or HTTP per OTEL_EXPORTER_OTLP_PROTOCOL) when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, else the pretty-printing stdout
// exporter. The pipeline drops records below the given level and is flushed
// by Shutdown.
func Instrument(level slog.Level, format string) error {
	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		return nil
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		return nil
	case "otlp":
		return instrumentOTLP(level)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
}

func instrumentOTLP(level slog.Level) error {
	exporter, err := newExporter(context.Background())
	if err != nil {
		return fmt.Errorf("create log exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	mu.Lock()
	provider = lp
	mu.Unlock()

	slog.SetDefault(otelslog.NewLogger(serviceName, otelslog.WithLoggerProvider(lp)))
	return nil
}

// newExporter picks the exporter from the standard OTLP environment.
// Without an endpoint, records pretty-print to stdout.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
		return stdoutlog.New(stdoutlog.WithPrettyPrint())
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
		return otlploggrpc.New(ctx)
	}
	return otlploghttp.New(ctx)
}

// severity maps a slog level onto the minimum OTel severity to keep.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// Shutdown flushes and stops the log pipeline if one was started.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	lp := provider
	provider = nil
	mu.Unlock()

	if lp == nil {
		return nil
	}
	return lp.Shutdown(ctx)
}
