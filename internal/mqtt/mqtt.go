// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/layer-threshold/internal/keymap"
)

// Topic is the MQTT topic for layer change events.
const Topic = "input/layer-threshold/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "input/layer-threshold/system"

// Layer event names.
const (
	EventLayerOn  = "LAYER_ON"
	EventLayerOff = "LAYER_OFF"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a layer change to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(change keymap.Change) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Layer LayerPayload `json:"layer"`
}

// LayerPayload contains the layer change details.
type LayerPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Layer     int    `json:"layer"`
	// Ints so the list is not marshalled as base64 bytes.
	ActiveLayers []int `json:"active_layers"`
}

// FormatPayload creates the JSON payload for a layer change.
func FormatPayload(change keymap.Change) ([]byte, error) {
	event := EventLayerOff
	if change.Active {
		event = EventLayerOn
	}

	active := make([]int, len(change.Layers))
	for i, l := range change.Layers {
		active[i] = int(l)
	}

	payload := Payload{
		Layer: LayerPayload{
			Timestamp:    change.Time.UTC().Format(time.RFC3339),
			Event:        event,
			Layer:        int(change.Layer),
			ActiveLayers: active,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
