package fixtures

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// FakeAddr is the address reported by FakeConn.
var FakeAddr = &net.TCPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 4242,
}

var (
	ErrClosedConnection        = errors.New("connection is closed")
	ErrAlreadyClosedConnection = errors.New("connection is already closed")
	ErrBrokenPipe              = errors.New("write: broken pipe")
	ErrConnectionRefused       = errors.New("dial tcp: connection refused")
)

// FakeConn is a net.Conn which records everything written to it.  The first FailWrites
// writes fail with ErrBrokenPipe.
type FakeConn struct {
	FailWrites int

	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	closed bool
}

// Write records b unless the connection is closed or set up to fail.
func (fc *FakeConn) Write(b []byte) (int, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return 0, ErrClosedConnection
	}
	fc.writes++
	if fc.FailWrites > 0 {
		fc.FailWrites--
		return 0, ErrBrokenPipe
	}
	return fc.buf.Write(b)
}

// Read is never expected to return data.
func (fc *FakeConn) Read(b []byte) (int, error) {
	return 0, ErrClosedConnection
}

// Close marks the connection closed.
func (fc *FakeConn) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return ErrAlreadyClosedConnection
	}
	fc.closed = true
	return nil
}

// Written returns everything successfully written so far.
func (fc *FakeConn) Written() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.buf.String()
}

// Writes returns the number of Write calls, failed ones included.
func (fc *FakeConn) Writes() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.writes
}

// Closed reports whether Close has been called.
func (fc *FakeConn) Closed() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.closed
}

// LocalAddr dummy impl.
func (fc *FakeConn) LocalAddr() net.Addr { return FakeAddr }

// RemoteAddr dummy impl.
func (fc *FakeConn) RemoteAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (fc *FakeConn) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (fc *FakeConn) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (fc *FakeConn) SetWriteDeadline(t time.Time) error { return nil }

// FakeDialer hands out a scripted sequence of connections.  A nil entry in Conns makes
// that attempt fail with ErrConnectionRefused.  Once the script is exhausted every
// attempt is refused.
type FakeDialer struct {
	Conns []*FakeConn

	mu       sync.Mutex
	attempts int
}

// Dial returns the next scripted connection.
func (fd *FakeDialer) Dial(ctx context.Context) (net.Conn, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	i := fd.attempts
	fd.attempts++
	if i >= len(fd.Conns) || fd.Conns[i] == nil {
		return nil, ErrConnectionRefused
	}
	return fd.Conns[i], nil
}

// Attempts returns the number of Dial calls so far.
func (fd *FakeDialer) Attempts() int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.attempts
}
