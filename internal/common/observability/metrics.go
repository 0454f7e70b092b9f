// internal/common/observability/metrics.go
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Options struct {
	ServiceName string
	// Registerer receives the OTel prometheus exporter. Nil disables OTel metrics.
	Registerer prometheus.Registerer
	// JaegerEndpoint is the collector URL, e.g. http://jaeger:14268/api/traces. Empty keeps spans local.
	JaegerEndpoint string
}

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	evaluations        otelmetric.Int64Counter
	evaluationDuration otelmetric.Float64Histogram
}

func New(opts Options) (*Observability, error) {
	o := &Observability{}

	if opts.Registerer != nil {
		exporter, err := otelprom.New(otelprom.WithRegisterer(opts.Registerer))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		meter := o.meterProvider.Meter(opts.ServiceName)

		o.evaluations, err = meter.Int64Counter(
			"eligibility.evaluations",
			otelmetric.WithDescription("Eligibility evaluations by outcome"),
		)
		if err != nil {
			return nil, fmt.Errorf("create evaluations counter: %w", err)
		}

		o.evaluationDuration, err = meter.Float64Histogram(
			"eligibility.evaluation.duration",
			otelmetric.WithDescription("Eligibility evaluation duration"),
			otelmetric.WithUnit("ms"),
		)
		if err != nil {
			return nil, fmt.Errorf("create duration histogram: %w", err)
		}
	}

	tp, err := newTracerProvider(opts.ServiceName, opts.JaegerEndpoint)
	if err != nil {
		return nil, err
	}
	o.tracerProvider = tp
	o.tracer = tp.Tracer(opts.ServiceName)

	return o, nil
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("")}
}

func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

// RecordEvaluation counts one finished evaluation and its duration, labelled by outcome.
func (o *Observability) RecordEvaluation(ctx context.Context, outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if o.evaluations != nil {
		o.evaluations.Add(ctx, 1, attrs)
	}
	if o.evaluationDuration != nil {
		o.evaluationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	var firstErr error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
