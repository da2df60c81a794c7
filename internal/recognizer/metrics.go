package recognizer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/rbright/murmur/recognizer"

const (
	outcomeDispatched = "dispatched"
	outcomeEmpty      = "empty"
)

type metrics struct {
	utterances metric.Int64Counter
	samples    metric.Int64Counter
	switches   metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	utterances, err := meter.Int64Counter("murmur.utterances",
		metric.WithDescription("Utterances closed by the segmenter"),
		metric.WithUnit("{utterance}"),
	)
	if err != nil {
		return nil, err
	}
	samples, err := meter.Int64Counter("murmur.samples.converted",
		metric.WithDescription("16 kHz samples fed to the engine"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}
	switches, err := meter.Int64Counter("murmur.grammar.switches",
		metric.WithDescription("Active grammar changes applied to the engine"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{utterances: utterances, samples: samples, switches: switches}, nil
}

func noopMetrics() *metrics {
	m, _ := newMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

func (m *metrics) utterance(ctx context.Context, dispatched bool) {
	outcome := outcomeEmpty
	if dispatched {
		outcome = outcomeDispatched
	}
	m.utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) converted(ctx context.Context, n int) {
	m.samples.Add(ctx, int64(n))
}

func (m *metrics) grammarSwitch(ctx context.Context, key string) {
	m.switches.Add(ctx, 1, metric.WithAttributes(attribute.String("grammar", key)))
}
