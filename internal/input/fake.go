package input

import (
	"errors"
	"io"
	"sync"

	"github.com/sweeney/layer-threshold/internal/logic"
)

// FakeReader is a test double that returns scripted events.
type FakeReader struct {
	DevicePath string

	// Events are returned in order. Once exhausted Read blocks until
	// Close, then returns io.EOF.
	Events []Event

	// ReadError, if set, is returned after Events are exhausted.
	ReadError error

	mu     sync.Mutex
	index  int
	closed bool
	done   chan struct{}
}

// NewFakeReader creates a FakeReader for path with the given events.
// The events' Device field is set to path.
func NewFakeReader(path string, events []Event) *FakeReader {
	evs := make([]Event, len(events))
	for i, ev := range events {
		ev.Device = path
		evs[i] = ev
	}
	return &FakeReader{DevicePath: path, Events: evs, done: make(chan struct{})}
}

func (f *FakeReader) Path() string { return f.DevicePath }

// Read returns the next scripted event.
func (f *FakeReader) Read() (Event, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Event{}, io.EOF
	}
	if f.index < len(f.Events) {
		ev := f.Events[f.index]
		f.index++
		f.mu.Unlock()
		return ev, nil
	}
	if f.ReadError != nil {
		err := f.ReadError
		f.mu.Unlock()
		return Event{}, err
	}
	done := f.done
	f.mu.Unlock()

	<-done
	return Event{}, io.EOF
}

// Close unblocks a pending Read.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	close(f.done)
	return nil
}

// Closed reports whether Close was called.
func (f *FakeReader) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Consumed returns how many scripted events were read.
func (f *FakeReader) Consumed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Motion builds a motion event for scripts.
func Motion(axis logic.Axis, delta int32) Event {
	return Event{Kind: KindMotion, Motion: logic.MotionEvent{Axis: axis, Delta: delta}}
}

// Key builds a key event for scripts.
func Key(position uint32, pressed bool) Event {
	return Event{Kind: KindKey, Key: logic.KeyEvent{Position: position, Pressed: pressed}}
}
