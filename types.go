package gokairos

import (
	"context"
)

// Runnable is a long running function intended to be launched in a goroutine.
type Runnable func(context.Context)

// Runner exposes a Runnable through an interface
type Runner interface {
	Run(context.Context)
}

func MaybeAppendRunnable(runnables []Runnable, maybeRunner interface{}) []Runnable {
	if r, ok := maybeRunner.(Runner); ok {
		runnables = append(runnables, r.Run)
	}
	return runnables
}

// EventHandler accepts events for processing.
type EventHandler interface {
	// DispatchEvent hands the event to the next step in the pipeline.  It blocks until the
	// event was accepted or the context is done.
	DispatchEvent(context.Context, *Event) error
}

// MetricExtractor turns one event into zero or more metrics.
type MetricExtractor interface {
	Extract(*Event) []Metric
}

// Backend delivers the metrics of a single event.
type Backend interface {
	// Name returns the name of the backend.
	Name() string
	// Connect blocks until the backend is able to send.
	Connect(context.Context) error
	// Send delivers metrics.  Delivery failures are handled internally, the only
	// error returned is the context error.
	Send(context.Context, []Metric) error
}
