package stats

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// Reporter drives the flush notifications of a Statser at a fixed interval.
type Reporter struct {
	statser  Statser
	interval time.Duration
}

// NewReporter creates a Reporter.  A non-positive interval disables it.
func NewReporter(statser Statser, interval time.Duration) *Reporter {
	return &Reporter{
		statser:  statser,
		interval: interval,
	}
}

// Run notifies the statser once per interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	clck := clock.FromContext(ctx)
	ticker := clck.NewTicker(r.interval)
	defer ticker.Stop()
	last := clck.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.statser.NotifyFlush(now.Sub(last))
			last = now
		}
	}
}
