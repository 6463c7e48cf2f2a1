package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/gokairos/internal/fixtures"
)

func newConn(t *testing.T, dialer *fixtures.FakeDialer) *Conn {
	return &Conn{
		Logger:            fixtures.NewTestLogger(t),
		Dial:              dialer.Dial,
		ReconnectInterval: 2 * time.Second,
		WriteTimeout:      time.Second,
	}
}

func TestEnsureConnectedRetriesAtFixedInterval(t *testing.T) {
	t.Parallel()
	fc := &fixtures.FakeConn{}
	dialer := &fixtures.FakeDialer{Conns: []*fixtures.FakeConn{nil, nil, nil, fc}}
	c := newConn(t, dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, clck, stop := fixtures.NewAdvancingClock(ctx)
	defer stop()
	start := clck.Now()

	require.NoError(t, c.EnsureConnected(ctx))
	assert.Equal(t, 4, dialer.Attempts())
	assert.Equal(t, 6*time.Second, clck.Now().Sub(start))
	assert.True(t, c.Connected())
	assert.Equal(t, Counters{Connects: 1, DialFailures: 3}, c.Counters())

	// Already connected, no further dial.
	require.NoError(t, c.EnsureConnected(ctx))
	assert.Equal(t, 4, dialer.Attempts())
}

func TestEnsureConnectedStopsOnContextDone(t *testing.T) {
	t.Parallel()
	dialer := &fixtures.FakeDialer{}
	c := newConn(t, dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ctx, _, stop := fixtures.NewAdvancingClock(ctx)
	defer stop()

	err := c.EnsureConnected(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, Disconnected, c.State())
	assert.GreaterOrEqual(t, dialer.Attempts(), 1)
}

func TestWrite(t *testing.T) {
	t.Parallel()
	fc := &fixtures.FakeConn{}
	c := newConn(t, &fixtures.FakeDialer{Conns: []*fixtures.FakeConn{fc}})
	ctx := context.Background()

	require.Equal(t, ErrNotConnected, c.Write(ctx, []byte("x")))
	require.NoError(t, c.EnsureConnected(ctx))
	require.NoError(t, c.Write(ctx, []byte("put a 1 1.0\n")))
	require.NoError(t, c.Write(ctx, []byte("put b 1 2.0\n")))
	assert.Equal(t, "put a 1 1.0\nput b 1 2.0\n", fc.Written())

	require.NoError(t, c.Close())
	assert.True(t, fc.Closed())
	assert.Equal(t, Disconnected, c.State())
	require.NoError(t, c.Close())
}

func TestWriteFailureDropsConnection(t *testing.T) {
	t.Parallel()
	broken := &fixtures.FakeConn{FailWrites: 1}
	fresh := &fixtures.FakeConn{}
	c := newConn(t, &fixtures.FakeDialer{Conns: []*fixtures.FakeConn{broken, fresh}})
	ctx := context.Background()

	require.NoError(t, c.EnsureConnected(ctx))
	require.Equal(t, fixtures.ErrBrokenPipe, c.Write(ctx, []byte("lost\n")))
	assert.True(t, broken.Closed())
	assert.False(t, c.Connected())
	require.Equal(t, ErrNotConnected, c.Write(ctx, []byte("lost too\n")))

	require.NoError(t, c.EnsureConnected(ctx))
	require.NoError(t, c.Write(ctx, []byte("kept\n")))
	assert.Equal(t, "kept\n", fresh.Written())
	assert.Empty(t, broken.Written())
	assert.Equal(t, Counters{Connects: 2, WriteFailures: 1}, c.Counters())
}

func TestWriteCanceled(t *testing.T) {
	t.Parallel()
	fc := &fixtures.FakeConn{}
	c := newConn(t, &fixtures.FakeDialer{Conns: []*fixtures.FakeConn{fc}})
	require.NoError(t, c.EnsureConnected(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, c.Write(ctx, []byte("x")))
	assert.Zero(t, fc.Writes())
	assert.True(t, c.Connected())
}

func TestWait(t *testing.T) {
	t.Parallel()
	c := newConn(t, &fixtures.FakeDialer{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, clck, stop := fixtures.NewAdvancingClock(ctx)
	defer stop()
	start := clck.Now()
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, 2*time.Second, clck.Now().Sub(start))

	canceled, cancel2 := context.WithCancel(ctx)
	cancel2()
	require.Equal(t, context.Canceled, c.Wait(canceled))
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(42).String())
}
