package stats

// NullStatser is a Statser which drops everything.
type NullStatser struct {
	flushNotifier
}

// Gauge does nothing.
func (ns *NullStatser) Gauge(name string, value float64, tags Tags) {}

// Count does nothing.
func (ns *NullStatser) Count(name string, amount float64, tags Tags) {}

// Increment does nothing.
func (ns *NullStatser) Increment(name string, tags Tags) {}

// WithTags returns the NullStatser itself.
func (ns *NullStatser) WithTags(tags Tags) Statser {
	return ns
}
