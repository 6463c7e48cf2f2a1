package stats

import (
	"sync/atomic"
)

// repeatCount is how many reporting intervals a changed gauge is sent for.
const repeatCount = 10

// ChangeGauge is a simpler wrapper to send a gauge for a rare event, multiple times.  It is primarily intended for
// things that won't change in the majority of cases (such as failure to decode an input line), and things that will
// be bursty (ie, a connection dropping).  It isn't suitable for things which are constantly changing such
// as number of metrics sent.
type ChangeGauge struct {
	// Cur is the last value expected to be sent.  If this is changed, SendIfChanged will send the value for
	// repeatCount intervals.  Cur is assumed to be atomic by ChangeGauge.SendIfChanged.
	Cur uint64 // atomic

	prev    uint64
	pending uint64 // number of times to re-send
}

// SendIfChanged sends Cur as a gauge if it changed in the last repeatCount calls.
func (cg *ChangeGauge) SendIfChanged(statser Statser, metricName string, tags Tags) {
	v := atomic.LoadUint64(&cg.Cur)
	if v != cg.prev {
		cg.prev = v
		cg.pending = repeatCount
	}
	if cg.pending > 0 {
		cg.pending--
		statser.Gauge(metricName, float64(v), tags)
	}
}
