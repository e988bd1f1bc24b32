package speech

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type sessionMetrics struct {
	finals   metric.Int64Counter
	restarts metric.Int64Counter
	errors   metric.Int64Counter
	commands metric.Int64Counter
}

func newSessionMetrics() sessionMetrics {
	meter := otel.Meter("github.com/loqalabs/loqa-scribe/speech")
	return sessionMetrics{
		finals:   counter(meter, "scribe.speech.final_chunks", "Final transcript batches delivered to the content sink"),
		restarts: counter(meter, "scribe.speech.restarts", "Recognizer restarts after an unsolicited end"),
		errors:   counter(meter, "scribe.speech.errors", "Recognizer errors by code"),
		commands: counter(meter, "scribe.speech.commands", "Spoken stop commands"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
