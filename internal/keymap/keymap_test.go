package keymap

import (
	"sync"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func TestNewHasDefaultLayer(t *testing.T) {
	k := New(fixedNow)
	if !k.IsActive(DefaultLayer) {
		t.Error("default layer should be active")
	}
	if got := k.Layers(); len(got) != 1 || got[0] != 0 {
		t.Errorf("expected [0], got %v", got)
	}
}

func TestActivateDeactivate(t *testing.T) {
	k := New(fixedNow)
	var changes []Change
	k.OnChange(func(c Change) { changes = append(changes, c) })

	k.Activate(3)
	if !k.IsActive(3) {
		t.Fatal("layer 3 should be active")
	}

	k.Deactivate(3)
	if k.IsActive(3) {
		t.Fatal("layer 3 should be inactive")
	}

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if !changes[0].Active || changes[0].Layer != 3 {
		t.Errorf("change 0: expected layer 3 on, got %+v", changes[0])
	}
	if len(changes[0].Layers) != 2 || changes[0].Layers[1] != 3 {
		t.Errorf("change 0: expected layers [0 3], got %v", changes[0].Layers)
	}
	if changes[1].Active || changes[1].Layer != 3 {
		t.Errorf("change 1: expected layer 3 off, got %+v", changes[1])
	}
	if !changes[1].Time.Equal(fixedNow()) {
		t.Errorf("change 1: unexpected time %v", changes[1].Time)
	}
}

func TestIdempotent(t *testing.T) {
	k := New(fixedNow)
	count := 0
	k.OnChange(func(Change) { count++ })

	k.Activate(2)
	k.Activate(2)
	k.Deactivate(2)
	k.Deactivate(2)
	k.Deactivate(5)

	if count != 2 {
		t.Errorf("expected 2 notifications, got %d", count)
	}
}

func TestDefaultLayerCannotBeDeactivated(t *testing.T) {
	k := New(fixedNow)
	count := 0
	k.OnChange(func(Change) { count++ })

	k.Deactivate(DefaultLayer)
	if !k.IsActive(DefaultLayer) {
		t.Error("default layer must stay active")
	}
	if count != 0 {
		t.Errorf("expected no notifications, got %d", count)
	}
}

func TestOutOfRangeLayerIgnored(t *testing.T) {
	k := New(fixedNow)
	count := 0
	k.OnChange(func(Change) { count++ })

	k.Activate(MaxLayers)
	k.Activate(200)
	if k.IsActive(MaxLayers) {
		t.Error("out-of-range layer reported active")
	}
	if count != 0 {
		t.Errorf("expected no notifications, got %d", count)
	}
}

func TestLayersWithSeveralActive(t *testing.T) {
	k := New(fixedNow)
	k.Activate(1)
	k.Activate(31)
	k.Activate(4)

	want := []uint8{0, 1, 4, 31}
	got := k.Layers()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestConcurrentActivation(t *testing.T) {
	k := New(fixedNow)
	var mu sync.Mutex
	ons := 0
	k.OnChange(func(c Change) {
		if c.Active {
			mu.Lock()
			ons++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Activate(6)
		}()
	}
	wg.Wait()

	if ons != 1 {
		t.Errorf("expected exactly 1 activation notification, got %d", ons)
	}
}

// Listeners must see changes in the order they were applied: each change's
// layer set is the previous one with exactly that layer toggled, and the
// last one matches the final state.
func TestConcurrentChangesDeliveredInOrder(t *testing.T) {
	k := New(fixedNow)
	var mu sync.Mutex
	var changes []Change
	k.OnChange(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for layer := uint8(1); layer <= 8; layer++ {
		wg.Add(1)
		go func(layer uint8) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k.Activate(layer)
				k.Deactivate(layer)
			}
		}(layer)
	}
	wg.Wait()

	prev := uint32(1)
	for i, c := range changes {
		var got uint32
		for _, l := range c.Layers {
			got |= 1 << l
		}
		if want := prev ^ (1 << c.Layer); got != want {
			t.Fatalf("change %d (layer %d active=%v): layers %v do not follow the previous set", i, c.Layer, c.Active, c.Layers)
		}
		prev = got
	}
	if prev != 1 {
		t.Errorf("last delivered change should leave only the default layer, got %b", prev)
	}
	if got := k.Layers(); len(got) != 1 || got[0] != DefaultLayer {
		t.Errorf("final layers: got %v", got)
	}
}
