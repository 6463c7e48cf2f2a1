package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/gokairos/pkg/util"
)

// ErrNotConnected is returned by Write when there is no open connection.
var ErrNotConnected = errors.New("not connected")

// DialFunc opens a new connection to the remote end.
type DialFunc func(ctx context.Context) (net.Conn, error)

// State is the state of a Conn.
type State int32

const (
	// Disconnected means there is no open connection.
	Disconnected State = iota
	// Connecting means EnsureConnected is dialing or waiting to dial again.
	Connecting
	// Connected means the last dial succeeded and no write has failed since.
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Conn owns a single long lived connection.  Any write failure drops the connection and
// EnsureConnected opens a new one, waiting ReconnectInterval between attempts for as long
// as it takes.
//
// Writers are serialised, at most one write or connect is in progress at any time.
type Conn struct {
	connects      uint64 // atomic
	dialFailures  uint64 // atomic
	writeFailures uint64 // atomic

	Logger            logrus.FieldLogger
	Dial              DialFunc
	ReconnectInterval time.Duration
	WriteTimeout      time.Duration

	mu   sync.Mutex
	conn net.Conn

	state int32 // State, atomic
}

// Counters is a snapshot of the connection counters.
type Counters struct {
	Connects      uint64
	DialFailures  uint64
	WriteFailures uint64
}

// State returns the current state of the connection.
func (c *Conn) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Connected reports whether there is an open connection.
func (c *Conn) Connected() bool {
	return c.State() == Connected
}

// Counters returns the connection counters.
func (c *Conn) Counters() Counters {
	return Counters{
		Connects:      atomic.LoadUint64(&c.connects),
		DialFailures:  atomic.LoadUint64(&c.dialFailures),
		WriteFailures: atomic.LoadUint64(&c.writeFailures),
	}
}

func (c *Conn) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// EnsureConnected returns once there is an open connection.  Failed attempts are retried
// every ReconnectInterval without limit, the only other way out is ctx being done.
func (c *Conn) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnected(ctx)
}

func (c *Conn) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	c.setState(Connecting)
	bo := util.NewReconnectBackoffFactory(clock.FromContext(ctx), c.ReconnectInterval)()
	for {
		conn, err := c.Dial(ctx)
		if err == nil {
			c.conn = conn
			atomic.AddUint64(&c.connects, 1)
			c.setState(Connected)
			c.Logger.WithField("remote", conn.RemoteAddr()).Info("Connected")
			return nil
		}
		atomic.AddUint64(&c.dialFailures, 1)
		next := bo.NextBackOff()
		if next == backoff.Stop {
			// The reconnect policy never stops, this only guards against a misconfigured one.
			next = c.ReconnectInterval
		}
		c.Logger.WithError(err).WithField("retry-in", next).Warn("Failed to connect")
		if err := sleep(ctx, next); err != nil {
			c.setState(Disconnected)
			return err
		}
	}
}

// Write writes the whole of b to the open connection.  On failure the connection is
// closed and dropped, the next EnsureConnected opens a new one.
func (c *Conn) Write(ctx context.Context, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	if c.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(clock.Now(ctx).Add(c.WriteTimeout)); err != nil {
			c.dropLocked(err)
			return err
		}
	}
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		if err != nil {
			c.dropLocked(err)
			return err
		}
		b = b[n:]
	}
	return nil
}

func (c *Conn) dropLocked(cause error) {
	atomic.AddUint64(&c.writeFailures, 1)
	if err := c.conn.Close(); err != nil {
		c.Logger.WithError(err).Debug("Error closing broken connection")
	}
	c.conn = nil
	c.setState(Disconnected)
	c.Logger.WithError(cause).Warn("Connection died")
}

// Wait blocks for ReconnectInterval, or until ctx is done.
func (c *Conn) Wait(ctx context.Context) error {
	return sleep(ctx, c.ReconnectInterval)
}

// Close closes the open connection, if any.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.setState(Disconnected)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	timer := clock.NewTimer(ctx, d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
