// Package keybus broadcasts key position events to every subscribed
// controller, in publish order.
package keybus

import (
	"sync"

	"github.com/sweeney/layer-threshold/internal/logic"
)

// Listener receives key position events.
type Listener interface {
	HandleKey(ev logic.KeyEvent) logic.Verdict
}

// Bus delivers each published event to all listeners synchronously.
// Verdicts are ignored: every listener sees every event.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	published uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe adds l to the end of the delivery order.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Publish delivers ev to the listeners in subscription order.
func (b *Bus) Publish(ev logic.KeyEvent) {
	b.mu.Lock()
	b.published++
	listeners := b.listeners
	b.mu.Unlock()

	for _, l := range listeners {
		l.HandleKey(ev)
	}
}

// Published returns the number of events published so far.
func (b *Bus) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}
