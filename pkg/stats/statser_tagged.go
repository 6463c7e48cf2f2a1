package stats

import (
	"time"
)

// TaggedStatser adds tags to everything sent through it, and shares the flush
// notifications of the Statser it wraps.
type TaggedStatser struct {
	statser Statser
	tags    Tags
}

// NewTaggedStatser creates a Statser which adds tags before passing metrics on to statser.
func NewTaggedStatser(statser Statser, tags Tags) Statser {
	return &TaggedStatser{
		statser: statser,
		tags:    tags,
	}
}

func (ts *TaggedStatser) NotifyFlush(d time.Duration) {
	ts.statser.NotifyFlush(d)
}

func (ts *TaggedStatser) RegisterFlush() (<-chan time.Duration, func()) {
	return ts.statser.RegisterFlush()
}

func (ts *TaggedStatser) Gauge(name string, value float64, tags Tags) {
	ts.statser.Gauge(name, value, ts.tags.Concat(tags))
}

func (ts *TaggedStatser) Count(name string, amount float64, tags Tags) {
	ts.statser.Count(name, amount, ts.tags.Concat(tags))
}

func (ts *TaggedStatser) Increment(name string, tags Tags) {
	ts.statser.Increment(name, ts.tags.Concat(tags))
}

func (ts *TaggedStatser) WithTags(tags Tags) Statser {
	return NewTaggedStatser(ts.statser, ts.tags.Concat(tags))
}
