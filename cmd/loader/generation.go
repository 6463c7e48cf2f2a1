package main

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type eventGenerator struct {
	remaining uint64 // atomic
	rnd       *rand.Rand

	prefix          string
	nameCardinality uint
	fields          uint
	nestedFields    uint
	valueLimit      uint
	now             func() time.Time
}

// next writes one JSON event to stream, or returns false once the quota is used up.
// Only the owning worker calls next.
func (eg *eventGenerator) next(stream *jsoniter.Stream) bool {
	if atomic.LoadUint64(&eg.remaining) == 0 {
		return false
	}
	atomic.AddUint64(&eg.remaining, ^uint64(0))

	stream.WriteObjectStart()
	stream.WriteObjectField("@timestamp")
	stream.WriteString(eg.now().UTC().Format(time.RFC3339))
	stream.WriteMore()
	stream.WriteObjectField("name")
	stream.WriteString(eg.prefix + strconv.Itoa(eg.rnd.Intn(int(eg.nameCardinality))))
	for i := uint(0); i < eg.fields; i++ {
		stream.WriteMore()
		stream.WriteObjectField("field" + strconv.Itoa(int(i)))
		stream.WriteUint(eg.value())
	}
	if eg.nestedFields > 0 {
		stream.WriteMore()
		stream.WriteObjectField("nested")
		stream.WriteObjectStart()
		for i := uint(0); i < eg.nestedFields; i++ {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField("n" + strconv.Itoa(int(i)))
			stream.WriteFloat64(float64(eg.value()) + eg.rnd.Float64())
		}
		stream.WriteObjectEnd()
	}
	stream.WriteObjectEnd()
	return true
}

func (eg *eventGenerator) value() uint {
	if eg.valueLimit == 0 {
		return 0
	}
	return uint(eg.rnd.Intn(int(eg.valueLimit) + 1))
}

// nextBatch writes a JSON array of up to size events and returns how many were written.
func (eg *eventGenerator) nextBatch(stream *jsoniter.Stream, size uint) uint {
	n := uint(0)
	stream.WriteArrayStart()
	for n < size {
		if n > 0 {
			// peek so a trailing separator is never written
			if atomic.LoadUint64(&eg.remaining) == 0 {
				break
			}
			stream.WriteMore()
		}
		if !eg.next(stream) {
			break
		}
		n++
	}
	stream.WriteArrayEnd()
	return n
}
