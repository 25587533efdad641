package mqtt

import (
	"github.com/sweeney/layer-threshold/internal/keymap"
)

// FakePublisher is an in-memory Publisher. Successful calls are kept in
// publish order together with the payload the broker would have received.
// Failed calls are not kept.
type FakePublisher struct {
	Changes        []keymap.Change
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Injected failures for Publish and PublishSystem.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher returns a disconnected FakePublisher with nothing kept.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish encodes change as a layer payload and keeps both.
func (f *FakePublisher) Publish(change keymap.Change) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(change)
	if err != nil {
		return err
	}
	f.Changes = append(f.Changes, change)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem encodes event as a status payload and keeps both.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// LayerEvents returns LAYER_ON or LAYER_OFF for each kept layer change.
func (f *FakePublisher) LayerEvents() []string {
	out := make([]string, len(f.Changes))
	for i, c := range f.Changes {
		out[i] = EventLayerOff
		if c.Active {
			out[i] = EventLayerOn
		}
	}
	return out
}

// SystemEventNames returns the event name of each kept system event.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset returns f to its state after NewFakePublisher.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
