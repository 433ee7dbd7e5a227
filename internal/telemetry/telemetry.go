// Package telemetry 配置 OpenTelemetry 链路追踪。
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"portfolio/internal/config"
)

// Shutdown 刷新并关闭 TracerProvider。
type Shutdown func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup 根据配置设置全局 TracerProvider。
// 未启用时返回空操作；配置了 OTLP 端点时上报到 collector，否则输出到 w。
func Setup(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	exp, err := newExporter(ctx, cfg.OTLPEndpoint, w)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(newResource(cfg.ServiceName)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("tracing enabled",
		slog.String("service", cfg.ServiceName),
		slog.Bool("otlp", cfg.OTLPEndpoint != ""),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, endpoint string, w io.Writer) (trace.SpanExporter, error) {
	if endpoint == "" {
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(endpoint))}
	if !strings.HasPrefix(endpoint, "https://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimRight(endpoint, "/")
}

func newResource(serviceName string) *resource.Resource {
	if serviceName == "" {
		serviceName = "portfolio-api"
	}
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// Handler 为 HTTP 处理器加上服务端 span。
func Handler(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
