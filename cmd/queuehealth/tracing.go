package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/odvcencio/queuehealth/internal/config"
)

// otlpTarget is the collector address split into the parts otlptracehttp takes.
type otlpTarget struct {
	host     string
	urlPath  string
	insecure bool
}

// parseOTLPEndpoint accepts either a bare host:port or a full URL. An http://
// scheme implies an insecure connection.
func parseOTLPEndpoint(endpoint string, insecure bool) otlpTarget {
	target := otlpTarget{host: endpoint, insecure: insecure}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return target
	}
	target.host = u.Host
	if p := strings.TrimRight(u.Path, "/"); p != "" {
		target.urlPath = p
	}
	if strings.EqualFold(u.Scheme, "http") {
		target.insecure = true
	}
	return target
}

func (t otlpTarget) options() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(t.host)}
	if t.urlPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(t.urlPath))
	}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// initTracing installs a global tracer provider exporting to cfg.Endpoint.
// With no endpoint the otel no-op provider stays in place.
func initTracing(ctx context.Context, cfg config.TracingConfig) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	target := parseOTLPEndpoint(endpoint, cfg.Insecure)
	exporter, err := otlptracehttp.New(ctx, target.options()...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "queuehealth"
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", serviceName),
		attribute.String("service.component", "job-queue-health"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
