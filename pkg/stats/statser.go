package stats

import (
	"time"
)

// Tags is a list of key:value tags attached to internal metrics.
type Tags []string

// Concat returns a new Tags with the additional tags appended.
func (tags Tags) Concat(additional Tags) Tags {
	t := make(Tags, 0, len(tags)+len(additional))
	t = append(t, tags...)
	t = append(t, additional...)
	return t
}

// Statser is the interface for sending internal metrics.
type Statser interface {
	// NotifyFlush is called when a reporting interval has elapsed.
	NotifyFlush(d time.Duration)
	// RegisterFlush returns a channel which receives every flush, and a function to unregister it.
	RegisterFlush() (<-chan time.Duration, func())

	Gauge(name string, value float64, tags Tags)
	Count(name string, amount float64, tags Tags)
	Increment(name string, tags Tags)
	WithTags(tags Tags) Statser
}
