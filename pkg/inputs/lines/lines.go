package lines

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/codec"
	"github.com/atlassian/gokairos/pkg/stats"
)

const (
	// MaxLineSize is the longest accepted line.  Longer lines stop the input.
	MaxLineSize = 1024 * 1024
	// DefaultBadLinesPerMinute is how many undecodable lines are logged per minute.
	DefaultBadLinesPerMinute = 60
)

// Input reads newline delimited JSON events from a reader and dispatches them.
type Input struct {
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	eventsReceived uint64 // atomic
	badLines       stats.ChangeGauge

	logger   logrus.FieldLogger
	name     string
	reader   io.Reader
	decoder  *codec.Decoder
	handler  gokairos.EventHandler
	badLimit *rate.Limiter
}

// New creates an Input.  Undecodable lines are counted, and logged at most badLinesPerMinute times a minute.
func New(logger logrus.FieldLogger, name string, reader io.Reader, handler gokairos.EventHandler, badLinesPerMinute float64) *Input {
	return &Input{
		logger:   logger.WithField("input", name),
		name:     name,
		reader:   reader,
		decoder:  codec.NewDecoder(),
		handler:  handler,
		badLimit: rate.NewLimiter(rate.Limit(badLinesPerMinute/60), 1),
	}
}

// Run reads until the reader is exhausted, fails, or an event could not be dispatched
// because ctx is done.  A blocked read is not interrupted by ctx.
func (in *Input) Run(ctx context.Context) {
	scanner := bufio.NewScanner(in.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := in.handleLine(ctx, line); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		in.logger.WithError(err).Error("Failed to read input")
		return
	}
	in.logger.Info("Input exhausted")
}

func (in *Input) handleLine(ctx context.Context, line []byte) error {
	e, err := in.decoder.Decode(line)
	if err != nil {
		atomic.AddUint64(&in.badLines.Cur, 1)
		if in.badLimit.Allow() {
			in.logger.WithError(err).WithField("line", string(line)).Warn("Failed to decode event")
		}
		return nil
	}
	if err := in.handler.DispatchEvent(ctx, e); err != nil {
		return err
	}
	atomic.AddUint64(&in.eventsReceived, 1)
	return nil
}

// RunMetrics reports the input counters on every flush until ctx is done.
func (in *Input) RunMetrics(ctx context.Context) {
	statser := stats.FromContext(ctx).WithTags(stats.Tags{"input:" + in.name})
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Gauge("input.events_received", float64(atomic.LoadUint64(&in.eventsReceived)), nil)
			in.badLines.SendIfChanged(statser, "input.bad_lines", nil)
		}
	}
}
