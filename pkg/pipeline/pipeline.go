package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/stats"
)

// ErrClosed is returned by DispatchEvent once the pipeline is closed.
var ErrClosed = errors.New("pipeline is closed")

// Pipeline hands events from any number of inputs to a single consumer which extracts
// their metrics and sends them, one event at a time.  A slow or unreachable backend
// blocks DispatchEvent for every input.
type Pipeline struct {
	eventsProcessed  uint64 // atomic
	eventsEmpty      uint64 // atomic
	metricsExtracted uint64 // atomic

	logger    logrus.FieldLogger
	extractor gokairos.MetricExtractor
	backend   gokairos.Backend

	events    chan *gokairos.Event
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Pipeline.
func New(logger logrus.FieldLogger, extractor gokairos.MetricExtractor, backend gokairos.Backend) *Pipeline {
	return &Pipeline{
		logger:    logger,
		extractor: extractor,
		backend:   backend,
		events:    make(chan *gokairos.Event),
		closed:    make(chan struct{}),
	}
}

// DispatchEvent blocks until the consumer took the event, the pipeline is closed, or ctx is done.
func (p *Pipeline) DispatchEvent(ctx context.Context, e *gokairos.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	case p.events <- e:
		return nil
	}
}

// Close makes Run return once the event being processed is done.  Events dispatched
// after Close are rejected.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

// Run connects the backend and processes events until the pipeline is closed or ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	if err := p.backend.Connect(ctx); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case e := <-p.events:
			if err := p.Process(ctx, e); err != nil {
				return
			}
		}
	}
}

// Process extracts the metrics of one event and sends them.  Events without metrics
// are dropped without any network activity.
func (p *Pipeline) Process(ctx context.Context, e *gokairos.Event) error {
	atomic.AddUint64(&p.eventsProcessed, 1)
	metrics := p.extractor.Extract(e)
	if len(metrics) == 0 {
		atomic.AddUint64(&p.eventsEmpty, 1)
		return nil
	}
	atomic.AddUint64(&p.metricsExtracted, uint64(len(metrics)))
	p.logger.WithField("metrics", len(metrics)).Debug("Sending event metrics")
	return p.backend.Send(ctx, metrics)
}

// RunMetrics reports the pipeline counters on every flush until ctx is done.
func (p *Pipeline) RunMetrics(ctx context.Context) {
	statser := stats.FromContext(ctx)
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Gauge("pipeline.events_processed", float64(atomic.LoadUint64(&p.eventsProcessed)), nil)
			statser.Gauge("pipeline.events_empty", float64(atomic.LoadUint64(&p.eventsEmpty)), nil)
			statser.Gauge("pipeline.metrics_extracted", float64(atomic.LoadUint64(&p.metricsExtracted)), nil)
		}
	}
}
