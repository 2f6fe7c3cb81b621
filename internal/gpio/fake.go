package gpio

import (
	"errors"
	"sync"
)

// FakeEdgeSource is a test double that delivers scripted edges.
type FakeEdgeSource struct {
	mu      sync.Mutex
	handler EdgeHandler

	// StartError, if set, will be returned by Start.
	StartError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeEdgeSource creates a FakeEdgeSource.
func NewFakeEdgeSource() *FakeEdgeSource {
	return &FakeEdgeSource{}
}

// Start records the handler.
func (f *FakeEdgeSource) Start(h EdgeHandler) error {
	if f.StartError != nil {
		return f.StartError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handler != nil {
		return errors.New("gpio: already started")
	}
	f.handler = h
	return nil
}

// Edge delivers a single falling edge at nowMs. It is a no-op before Start
// or after Close.
func (f *FakeEdgeSource) Edge(nowMs int64) {
	f.mu.Lock()
	h := f.handler
	closed := f.Closed
	f.mu.Unlock()
	if h == nil || closed {
		return
	}
	h(nowMs)
}

// Edges delivers one edge per timestamp, in order.
func (f *FakeEdgeSource) Edges(nowMs ...int64) {
	for _, t := range nowMs {
		f.Edge(t)
	}
}

// Close marks the source as closed.
func (f *FakeEdgeSource) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
