package telemetry

import "context"

// NewNoop returns a Telemetry whose Logger/Metrics/Tracer all discard their
// input. Used by component tests that don't want a live Clue/OTEL backend.
func NewNoop() Telemetry {
	return Telemetry{Log: noopLogger{}, Metrics: noopMetrics{}, Tracer: noopTracer{}}
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...KV)        {}
func (noopLogger) Info(context.Context, string, ...KV)         {}
func (noopLogger) Warn(context.Context, string, ...KV)         {}
func (noopLogger) Error(context.Context, string, error, ...KV) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, ...KV)          {}
func (noopMetrics) RecordTimer(string, float64, ...KV) {}
func (noopMetrics) RecordGauge(string, float64, ...KV) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) AddEvent(string, ...KV)    {}
func (noopSpan) RecordError(error)         {}
func (noopSpan) SetStatusError(string)     {}
func (noopSpan) End()                      {}
