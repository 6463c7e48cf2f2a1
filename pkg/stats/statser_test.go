package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsConcat(t *testing.T) {
	t.Parallel()
	base := Tags{"a:1"}
	extended := base.Concat(Tags{"b:2"})
	assert.Equal(t, Tags{"a:1", "b:2"}, extended)
	assert.Equal(t, Tags{"a:1"}, base)
	assert.Equal(t, Tags{}, Tags(nil).Concat(nil))
}

func TestTaggedStatserAddsTags(t *testing.T) {
	t.Parallel()
	ms := &MockStatser{}
	ms.On("Gauge", "g", 1.0, Tags{"backend:kairosdb", "state:up"}).Once()
	ms.On("Count", "c", 2.0, Tags{"backend:kairosdb"}).Once()
	ms.On("Increment", "i", Tags{"backend:kairosdb", "nested:yes"}).Once()

	tagged := ms.WithTags(Tags{"backend:kairosdb"})
	tagged.Gauge("g", 1, Tags{"state:up"})
	tagged.Count("c", 2, nil)
	tagged.WithTags(Tags{"nested:yes"}).Increment("i", nil)
	ms.AssertExpectations(t)
}

func TestFlushNotifier(t *testing.T) {
	t.Parallel()
	ns := &NullStatser{}
	tagged := ns.WithTags(Tags{"x"})
	flushed, unregister := NewTaggedStatser(tagged, nil).RegisterFlush()

	done := make(chan time.Duration)
	go func() {
		done <- <-flushed
	}()
	// The notification is dropped if nobody is receiving, so keep sending until it lands.
	var got time.Duration
	for got == 0 {
		ns.NotifyFlush(time.Second)
		select {
		case got = <-done:
		case <-time.After(time.Millisecond):
		}
	}
	require.Equal(t, time.Second, got)

	unregister()
	_, ok := <-flushed
	require.False(t, ok)
	ns.NotifyFlush(time.Second)
}
