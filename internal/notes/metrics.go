package notes

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/loqalabs/loqa-scribe/notes"

type storeMetrics struct {
	writes    metric.Int64Counter
	failures  metric.Int64Counter
	scheduled metric.Int64Counter
	coalesced metric.Int64Counter
}

func newStoreMetrics() storeMetrics {
	meter := otel.Meter(instrumentationName)
	return storeMetrics{
		writes:    counter(meter, "scribe.notes.writes", "Persisted writes of the note collection"),
		failures:  counter(meter, "scribe.notes.write_failures", "Failed writes of the note collection"),
		scheduled: counter(meter, "scribe.notes.autosave.scheduled", "Debounced auto-saves scheduled"),
		coalesced: counter(meter, "scribe.notes.autosave.coalesced", "Scheduled auto-saves replaced before firing"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
