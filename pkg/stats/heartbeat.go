package stats

import (
	"context"
)

// HeartBeater sends a counter on every flush so a silent process can be told apart from an idle one.
type HeartBeater struct {
	metricName string
	tags       Tags
}

// NewHeartBeater creates a new HeartBeater
func NewHeartBeater(metricName string, tags Tags) *HeartBeater {
	return &HeartBeater{
		metricName: metricName,
		tags:       tags,
	}
}

// Run will run a HeartBeater in the background until the supplied context is closed.
func (hb *HeartBeater) Run(ctx context.Context) {
	statser := FromContext(ctx).WithTags(hb.tags)
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Increment(hb.metricName, nil)
		}
	}
}
