// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartRunSpan 开始整条 run 的 span
func StartRunSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("apexflow")
	ctx, span := tracer.Start(ctx, "run.execute",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
	return ctx, span
}

// StartStepSpan 开始单个任务步骤的 span
func StartStepSpan(ctx context.Context, stepID string, role string) (context.Context, trace.Span) {
	tracer := otel.Tracer("apexflow")
	ctx, span := tracer.Start(ctx, "step.execute",
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("step.role", role),
		),
	)
	return ctx, span
}

// StartToolSpan 开始 tool invocation span
func StartToolSpan(ctx context.Context, toolName string, stepID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("apexflow")
	ctx, span := tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("step.id", stepID),
		),
	)
	return ctx, span
}
