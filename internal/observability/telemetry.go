// Package observability настраивает трассировку OpenTelemetry.
package observability

import (
	"context"
	"os"
	"time"

	"github.com/annel0/voxelgen/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// EndpointEnv переменная окружения стандартного OTLP экспортера
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// Enabled сообщает, задан ли адрес коллектора
func Enabled() bool {
	return os.Getenv(EndpointEnv) != ""
}

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider.
// Без OTEL_EXPORTER_OTLP_ENDPOINT трассировка не включается и возвращается пустой shutdown.
func InitTelemetry(ctx context.Context, serviceName, version string) (func(context.Context) error, error) {
	if !Enabled() {
		logging.Debug("OpenTelemetry отключён: %s не задан", EndpointEnv)
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry инициализирован (OTLP → %s, service=%s)", os.Getenv(EndpointEnv), serviceName)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}
