package embedding

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vectord.embedding"

// Metrics records embedding telemetry via OpenTelemetry.
type Metrics struct {
	attempts          metric.Int64Counter
	attemptLatency    metric.Float64Histogram
	chainExecutions   metric.Int64Counter
	chainLatency      metric.Float64Histogram
	chainAttempts     metric.Int64Histogram
	circuitRejections metric.Int64Counter
}

// NewMetrics creates the embedding instrument set on the global meter
// provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	attempts, err := meter.Int64Counter(
		"embedding.attempts",
		metric.WithDescription("Provider attempts by provider and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}

	attemptLatency, err := meter.Float64Histogram(
		"embedding.attempt.duration",
		metric.WithDescription("Single provider attempt latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create attempt latency histogram: %w", err)
	}

	chainExecutions, err := meter.Int64Counter(
		"embedding.chain.executions",
		metric.WithDescription("Chain executions by serving provider and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain counter: %w", err)
	}

	chainLatency, err := meter.Float64Histogram(
		"embedding.chain.duration",
		metric.WithDescription("End-to-end chain latency including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain latency histogram: %w", err)
	}

	chainAttempts, err := meter.Int64Histogram(
		"embedding.chain.providers_attempted",
		metric.WithDescription("Providers invoked per chain execution"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain attempts histogram: %w", err)
	}

	circuitRejections, err := meter.Int64Counter(
		"embedding.circuit.rejections",
		metric.WithDescription("Calls rejected by an open circuit breaker"),
	)
	if err != nil {
		return nil, fmt.Errorf("create circuit rejections counter: %w", err)
	}

	return &Metrics{
		attempts:          attempts,
		attemptLatency:    attemptLatency,
		chainExecutions:   chainExecutions,
		chainLatency:      chainLatency,
		chainAttempts:     chainAttempts,
		circuitRejections: circuitRejections,
	}, nil
}

// RecordAttempt records one provider attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, provider string, latency time.Duration, err error) {
	outcome := "success"
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
	}
	if err != nil {
		outcome = "failure"
		attrs = append(attrs, attribute.String("kind", string(KindOf(err))))
	}
	attrs = append(attrs, attribute.String("outcome", outcome))

	m.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.attemptLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

// RecordChain records one chain execution end to end.
func (m *Metrics) RecordChain(ctx context.Context, provider string, attempted int, elapsed time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.chainExecutions.Add(ctx, 1, attrs)
	m.chainLatency.Record(ctx, elapsed.Seconds(), attrs)
	m.chainAttempts.Record(ctx, int64(attempted), attrs)
}

// RecordCircuitRejection records a call short-circuited by an open breaker.
func (m *Metrics) RecordCircuitRejection(ctx context.Context, provider string) {
	m.circuitRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}
