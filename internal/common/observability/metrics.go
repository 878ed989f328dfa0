package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	runCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
	resultCount    otelmetric.Int64Histogram
}

func New(serviceName string) *Observability {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))))
	otel.SetTracerProvider(tp)

	o := &Observability{
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"pipeline.runs",
		otelmetric.WithDescription("Number of recommendation pipeline runs"),
	)

	runDuration, _ := meter.Float64Histogram(
		"pipeline.duration",
		otelmetric.WithDescription("Recommendation pipeline duration"),
		otelmetric.WithUnit("ms"),
	)

	resultCount, _ := meter.Int64Histogram(
		"pipeline.results",
		otelmetric.WithDescription("Ranked results produced before pagination"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.runCounter = runCounter
	o.runDuration = runDuration
	o.resultCount = resultCount
	return o
}

// Nop returns an Observability that records nothing.
func Nop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("")}
}

// StartSpan starts a span on the service tracer. It is safe on a nil receiver.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordRun(ctx context.Context, category, outcome string, duration time.Duration, results int) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("category", category),
		attribute.String("outcome", outcome),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if o.resultCount != nil {
		o.resultCount.Record(ctx, int64(results), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
