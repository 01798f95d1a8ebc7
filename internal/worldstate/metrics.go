package worldstate

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/bossmod/tracker/internal/worldstate"

type metrics struct {
	emitted metric.Int64Counter
}

// newMetrics uses the global meter, which is a no-op unless a provider is installed.
func newMetrics() *metrics {
	c, err := otel.Meter(instrumentationName).Int64Counter(
		"worldstate.events.emitted",
		metric.WithDescription("Change events published by the world state"),
	)
	if err != nil {
		c = noop.Int64Counter{}
	}
	return &metrics{emitted: c}
}

func (m *metrics) emit(channel string) {
	m.emitted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func sameFloat(a, b float32) bool {
	return math.Float32bits(a) == math.Float32bits(b)
}
