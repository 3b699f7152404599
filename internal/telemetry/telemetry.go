// Package telemetry provides the logging, tracing, and metrics facade used
// by every node component. The default implementation wraps goa.design/clue
// and OpenTelemetry; tests use the no-op implementation instead of wiring a
// real backend.
package telemetry

import (
	"context"

	"goa.design/clue/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// KV is a single structured logging field.
type KV struct {
	Key string
	Val any
}

// Logger is the structured logging interface every component depends on.
type Logger interface {
	Debug(ctx context.Context, msg string, kvs ...KV)
	Info(ctx context.Context, msg string, kvs ...KV)
	Warn(ctx context.Context, msg string, kvs ...KV)
	Error(ctx context.Context, msg string, err error, kvs ...KV)
}

// Metrics is the counter/gauge/timer interface for operational metrics.
type Metrics interface {
	IncCounter(name string, kvs ...KV)
	RecordTimer(name string, seconds float64, kvs ...KV)
	RecordGauge(name string, value float64, kvs ...KV)
}

// Tracer is the span interface carried in Telemetry. No component in this
// repository opens spans through it.
type Tracer interface {
	Start(ctx context.Context, spanName string) (context.Context, Span)
}

// Span is an open trace span.
type Span interface {
	AddEvent(name string, kvs ...KV)
	RecordError(err error)
	SetStatusError(msg string)
	End()
}

// Telemetry bundles the three facades a component typically needs.
type Telemetry struct {
	Log     Logger
	Metrics Metrics
	Tracer  Tracer
}

// clueLogger implements Logger on top of goa.design/clue/log.
type clueLogger struct{}

// NewClueLogger returns a Logger backed by goa.design/clue/log. The caller
// is responsible for having called log.Context on the base context, as
// shown in cmd/agentnode/main.go.
func NewClueLogger() Logger { return clueLogger{} }

func (clueLogger) Debug(ctx context.Context, msg string, kvs ...KV) {
	log.Debug(ctx, msg, kvPairs(kvs)...)
}

func (clueLogger) Info(ctx context.Context, msg string, kvs ...KV) {
	log.Info(ctx, msg, kvPairs(kvs)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, kvs ...KV) {
	log.Error(ctx, log.Errorf(msg), kvPairs(kvs)...)
}

func (clueLogger) Error(ctx context.Context, msg string, err error, kvs ...KV) {
	all := append([]KV{{Key: "error", Val: errString(err)}}, kvs...)
	log.Error(ctx, log.Errorf(msg), kvPairs(all)...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func kvPairs(kvs []KV) []log.Fielder {
	out := make([]log.Fielder, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, log.KV{K: kv.Key, V: kv.Val})
	}
	return out
}

// otelMetrics implements Metrics on top of an OTEL meter.
type otelMetrics struct {
	meter metric.Meter
}

// NewOTelMetrics returns a Metrics backed by the global OTEL meter provider
// under the given instrumentation name.
func NewOTelMetrics(instrumentationName string) Metrics {
	return &otelMetrics{meter: otel.Meter(instrumentationName)}
}

func (m *otelMetrics) IncCounter(name string, kvs ...KV) {
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(tagsToAttrs(kvs)...))
}

func (m *otelMetrics) RecordTimer(name string, seconds float64, kvs ...KV) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), seconds, metric.WithAttributes(tagsToAttrs(kvs)...))
}

func (m *otelMetrics) RecordGauge(name string, value float64, kvs ...KV) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(kvs)...))
}

func tagsToAttrs(kvs []KV) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		switch v := kv.Val.(type) {
		case string:
			out = append(out, attribute.String(kv.Key, v))
		case int:
			out = append(out, attribute.Int(kv.Key, v))
		case int64:
			out = append(out, attribute.Int64(kv.Key, v))
		case float64:
			out = append(out, attribute.Float64(kv.Key, v))
		case bool:
			out = append(out, attribute.Bool(kv.Key, v))
		default:
			out = append(out, attribute.String(kv.Key, errString(nil)))
		}
	}
	return out
}

// otelTracer implements Tracer on top of an OTEL tracer.
type otelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns a Tracer backed by the global OTEL tracer provider
// under the given instrumentation name.
func NewOTelTracer(instrumentationName string) Tracer {
	return &otelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t *otelTracer) Start(ctx context.Context, spanName string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, spanName)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) AddEvent(name string, kvs ...KV) {
	s.span.AddEvent(name, trace.WithAttributes(tagsToAttrs(kvs)...))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func (s *otelSpan) SetStatusError(msg string) {
	s.span.SetStatus(codes.Error, msg)
}

func (s *otelSpan) End() { s.span.End() }
