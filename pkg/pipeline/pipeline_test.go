package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/internal/fixtures"
	"github.com/atlassian/gokairos/pkg/backends/kairosdb"
	"github.com/atlassian/gokairos/pkg/extract"
)

func newExtractor(t *testing.T, metrics ...extract.MetricTemplate) *extract.Extractor {
	cfg := extract.DefaultConfig()
	if len(metrics) == 0 {
		cfg.FieldsAreMetrics = true
	}
	cfg.Metrics = metrics
	x, err := extract.New(cfg, fixtures.NewTestLogger(t))
	require.NoError(t, err)
	return x
}

func TestRunProcessesDispatchedEvents(t *testing.T) {
	t.Parallel()
	backend := &fixtures.MockBackend{TB: t}
	p := New(fixtures.NewTestLogger(t), newExtractor(t), backend)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg wait.Group
	wg.StartWithContext(ctx, p.Run)

	require.NoError(t, p.DispatchEvent(ctx, fixtures.MakeEvent("foo", "123", "bar", "42")))
	require.NoError(t, p.DispatchEvent(ctx, fixtures.MakeEvent()))
	require.NoError(t, p.DispatchEvent(ctx, fixtures.MakeEvent("baz", 1)))
	p.Close()
	wg.Wait()

	batches := backend.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, "baz", batches[1][0].Name)
	assert.EqualValues(t, 3, p.eventsProcessed)
	assert.EqualValues(t, 1, p.eventsEmpty)
	assert.EqualValues(t, 3, p.metricsExtracted)

	require.Equal(t, ErrClosed, p.DispatchEvent(ctx, fixtures.MakeEvent("late", 1)))
	p.Close()
}

func TestDispatchEventBlocksUntilCanceled(t *testing.T) {
	t.Parallel()
	p := New(fixtures.NewTestLogger(t), newExtractor(t), &fixtures.MockBackend{TB: t})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Equal(t, context.DeadlineExceeded, p.DispatchEvent(ctx, fixtures.MakeEvent("foo", 1)))
}

func TestRunStopsWhenConnectIsCanceled(t *testing.T) {
	t.Parallel()
	backend := &fixtures.MockBackend{
		TB: t,
		FnConnect: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	p := New(fixtures.NewTestLogger(t), newExtractor(t), backend)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestProcessEndToEnd(t *testing.T) {
	t.Parallel()
	fc := &fixtures.FakeConn{}
	dialer := &fixtures.FakeDialer{Conns: []*fixtures.FakeConn{fc}}
	client, err := kairosdb.NewClientWithDialer("kairosdb:4242", dialer.Dial, time.Second, time.Second, false, fixtures.NewTestLogger(t))
	require.NoError(t, err)
	x := newExtractor(t, extract.MetricTemplate{Name: "hurray.%{foo}", Value: "%{bar}"})
	p := New(fixtures.NewTestLogger(t), x, client)
	ctx := context.Background()

	// Unresolved names are excluded, so nothing reaches the network.
	require.NoError(t, p.Process(ctx, fixtures.MakeEvent("bar", 42)))
	assert.Zero(t, dialer.Attempts())

	require.NoError(t, p.Process(ctx, fixtures.MakeEvent("foo", "fancy", "bar", 42)))
	assert.Equal(t, "put hurray.fancy 1600000000 42.0\n", fc.Written())
}

func TestProcessReturnsSendError(t *testing.T) {
	t.Parallel()
	backend := &fixtures.MockBackend{
		TB: t,
		FnSend: func(ctx context.Context, metrics []gokairos.Metric) error {
			return context.Canceled
		},
	}
	p := New(fixtures.NewTestLogger(t), newExtractor(t), backend)
	require.Equal(t, context.Canceled, p.Process(context.Background(), fixtures.MakeEvent("foo", 1)))
}
