package gpio

import "sync"

// FakeIndicator is a test double that records every value written.
type FakeIndicator struct {
	mu     sync.Mutex
	values []bool
	closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeIndicator creates a FakeIndicator.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records the value.
func (f *FakeIndicator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.values = append(f.values, on)
	return nil
}

// Close marks the indicator as closed.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Values returns a copy of every value written.
func (f *FakeIndicator) Values() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.values))
	copy(out, f.values)
	return out
}

// On reports the last written value. False if nothing was written.
func (f *FakeIndicator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return false
	}
	return f.values[len(f.values)-1]
}

// Closed reports whether Close was called.
func (f *FakeIndicator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
