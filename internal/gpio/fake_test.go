package gpio

import (
	"errors"
	"testing"
)

var (
	_ Indicator = (*FakeIndicator)(nil)
	_ Indicator = (*RealIndicator)(nil)
	_ Indicator = Nop{}
)

func TestFakeIndicatorRecords(t *testing.T) {
	f := NewFakeIndicator()

	if f.On() {
		t.Error("should be off before any write")
	}

	for _, v := range []bool{true, true, false} {
		if err := f.Set(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := f.Values()
	if len(got) != 3 || !got[0] || !got[1] || got[2] {
		t.Errorf("Values: got %v, want [true true false]", got)
	}
	if f.On() {
		t.Error("last write was false")
	}

	// Values returns a copy.
	got[2] = true
	if f.On() {
		t.Error("mutating Values() result should not affect fake")
	}
}

func TestFakeIndicatorError(t *testing.T) {
	f := NewFakeIndicator()
	f.SetError = errors.New("simulated error")

	if err := f.Set(true); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.Values()) != 0 {
		t.Error("failed write should not be recorded")
	}
}

func TestFakeIndicatorClose(t *testing.T) {
	f := NewFakeIndicator()

	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestNop(t *testing.T) {
	var n Nop
	if err := n.Set(true); err != nil {
		t.Errorf("Set: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
