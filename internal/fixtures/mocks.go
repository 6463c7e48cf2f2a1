package fixtures

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlassian/gokairos"
)

// MockBackend implements gokairos.Backend.  Without FnSend it records every batch.
type MockBackend struct {
	TB testing.TB

	FnConnect func(ctx context.Context) error
	FnSend    func(ctx context.Context, metrics []gokairos.Metric) error

	mu      sync.Mutex
	batches [][]gokairos.Metric
}

func (m *MockBackend) Name() string {
	return "mock"
}

func (m *MockBackend) Connect(ctx context.Context) error {
	if m.FnConnect != nil {
		return m.FnConnect(ctx)
	}
	return nil
}

func (m *MockBackend) Send(ctx context.Context, metrics []gokairos.Metric) error {
	if m.FnSend != nil {
		return m.FnSend(ctx, metrics)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, metrics)
	return nil
}

// Batches returns the recorded batches.
func (m *MockBackend) Batches() [][]gokairos.Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]gokairos.Metric(nil), m.batches...)
}

// MockEventHandler implements gokairos.EventHandler.
type MockEventHandler struct {
	TB testing.TB

	FnDispatchEvent func(ctx context.Context, e *gokairos.Event) error
}

func (m *MockEventHandler) DispatchEvent(ctx context.Context, e *gokairos.Event) error {
	if m.FnDispatchEvent != nil {
		return m.FnDispatchEvent(ctx, e)
	}
	assert.Fail(m.TB, "EventHandler.DispatchEvent must not be called")
	return nil
}

// CapturingEventHandler records every dispatched event.
type CapturingEventHandler struct {
	mu     sync.Mutex
	events []*gokairos.Event
}

func (c *CapturingEventHandler) DispatchEvent(ctx context.Context, e *gokairos.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// Events returns the captured events.
func (c *CapturingEventHandler) Events() []*gokairos.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*gokairos.Event(nil), c.events...)
}
