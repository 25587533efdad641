// Package keymap tracks which keymap layers are active.
// Layer 0 is the default layer and is always active.
package keymap

import (
	"sync"
	"time"
)

// MaxLayers is the number of layers a Keymap can hold.
const MaxLayers = 32

// DefaultLayer is always active and cannot be deactivated.
const DefaultLayer uint8 = 0

// Change describes a layer transition.
type Change struct {
	Time   time.Time
	Layer  uint8
	Active bool
	// Layers is the full set of active layers after the change.
	Layers []uint8
}

// Listener is called synchronously for every change, from whichever
// goroutine caused it, in the order the changes were applied. It must not
// block or call Activate or Deactivate.
type Listener func(Change)

// Keymap holds the active layer state behind a mutex.
type Keymap struct {
	// notify is held from applying a change until its listeners return,
	// so listeners see changes in state order.
	notify    sync.Mutex
	mu        sync.Mutex
	state     uint32
	now       func() time.Time
	listeners []Listener
}

// New creates a Keymap with only the default layer active.
// now supplies timestamps for changes.
func New(now func() time.Time) *Keymap {
	return &Keymap{
		state: 1 << DefaultLayer,
		now:   now,
	}
}

// OnChange registers a listener. Not safe to call concurrently with
// Activate or Deactivate; register listeners before events start flowing.
func (k *Keymap) OnChange(l Listener) {
	k.listeners = append(k.listeners, l)
}

// Activate turns layer on. Activating an active or out-of-range layer is a no-op.
func (k *Keymap) Activate(layer uint8) {
	k.set(layer, true)
}

// Deactivate turns layer off. Deactivating an inactive layer, the default
// layer or an out-of-range layer is a no-op.
func (k *Keymap) Deactivate(layer uint8) {
	if layer == DefaultLayer {
		return
	}
	k.set(layer, false)
}

func (k *Keymap) set(layer uint8, active bool) {
	if layer >= MaxLayers {
		return
	}
	bit := uint32(1) << layer

	k.notify.Lock()
	defer k.notify.Unlock()

	k.mu.Lock()
	if (k.state&bit != 0) == active {
		k.mu.Unlock()
		return
	}
	if active {
		k.state |= bit
	} else {
		k.state &^= bit
	}
	change := Change{
		Time:   k.now(),
		Layer:  layer,
		Active: active,
		Layers: layersOf(k.state),
	}
	k.mu.Unlock()

	for _, l := range k.listeners {
		l(change)
	}
}

// IsActive reports whether layer is active.
func (k *Keymap) IsActive(layer uint8) bool {
	if layer >= MaxLayers {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state&(1<<layer) != 0
}

// Layers returns the active layers in ascending order.
func (k *Keymap) Layers() []uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return layersOf(k.state)
}

func layersOf(state uint32) []uint8 {
	var out []uint8
	for l := 0; l < MaxLayers; l++ {
		if state&(1<<uint(l)) != 0 {
			out = append(out, uint8(l))
		}
	}
	return out
}
