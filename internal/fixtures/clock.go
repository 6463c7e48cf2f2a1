package fixtures

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// NewAdvancingClock attaches a virtual clock to a context.  The clock jumps straight to the
// next pending timer, so reconnect waits complete without wall time passing.  The returned
// function stops the clock, as does canceling ctx.
func NewAdvancingClock(ctx context.Context) (context.Context, *clock.Mock, func()) {
	clck := clock.NewMock(time.Unix(1, 0))
	ctx = clock.Context(ctx, clck)
	ch := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				return
			case <-ctx.Done():
				return
			default:
				if _, d := clck.AddNext(); d == 0 {
					time.Sleep(time.Microsecond)
				}
			}
		}
	}()
	return ctx, clck, func() {
		close(ch)
	}
}

// NextStep will advance the supplied clock.Mock until it moves, or the context.Context is canceled (which typically
// means it timed out in wall-time).  This is useful when the code under test waits inside a goroutine and it's not
// possible to tell when it is ready to consume mock time.
func NextStep(ctx context.Context, clck *clock.Mock) {
	for _, d := clck.AddNext(); d == 0 && ctx.Err() == nil; _, d = clck.AddNext() {
		time.Sleep(1) // Allows the system to actually idle, runtime.Gosched() does not.
	}
}
