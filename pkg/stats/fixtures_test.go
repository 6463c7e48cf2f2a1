package stats

import (
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

type MockStatser struct {
	mock.Mock
	flushNotifier
}

func (ms *MockStatser) Gauge(name string, value float64, tags Tags) {
	ms.Called(name, value, tags)
}

func (ms *MockStatser) Count(name string, amount float64, tags Tags) {
	ms.Called(name, amount, tags)
}

func (ms *MockStatser) Increment(name string, tags Tags) {
	ms.Called(name, tags)
}

func (ms *MockStatser) WithTags(tags Tags) Statser {
	return NewTaggedStatser(ms, tags)
}

type countingStatser struct {
	NullStatser
	gauges   uint64
	counters uint64
}

func (cs *countingStatser) Gauge(name string, value float64, tags Tags) {
	atomic.AddUint64(&cs.gauges, 1)
}

func (cs *countingStatser) Count(name string, amount float64, tags Tags) {
	atomic.AddUint64(&cs.counters, 1)
}

func (cs *countingStatser) Increment(name string, tags Tags) {
	atomic.AddUint64(&cs.counters, 1)
}

func (cs *countingStatser) WithTags(tags Tags) Statser {
	return cs
}
