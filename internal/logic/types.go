// Package logic contains the threshold layer state machine.
// This package has NO external dependencies (no evdev, MQTT, GPIO or OS).
// Time and timers are always injected through clock.Clock.
package logic

import "time"

// Axis identifies the axis of a relative motion sample.
type Axis string

const (
	AxisX      Axis = "X"
	AxisY      Axis = "Y"
	AxisWheel  Axis = "WHEEL"
	AxisHWheel Axis = "HWHEEL"
	// AxisButton marks a pointer button press or release. It carries no motion.
	AxisButton Axis = "BUTTON"
)

// Verdict tells a pipeline whether to keep passing an event along.
type Verdict int

const (
	// Continue passes the event to the next processor.
	Continue Verdict = iota
	// Stop consumes the event.
	Stop
)

// MotionEvent is a single event from a pointer device: a relative motion
// sample or a button change.
type MotionEvent struct {
	Axis  Axis
	Delta int32
}

// KeyEvent is a key position state change.
type KeyEvent struct {
	Position uint32
	Pressed  bool
	Time     time.Time
}

// LayerControl activates and deactivates keymap layers.
// Implementations must be idempotent and must not block.
type LayerControl interface {
	Activate(layer uint8)
	Deactivate(layer uint8)
}

// Config holds the immutable per-controller tuning.
type Config struct {
	// Minimum accumulated |dx|+|dy| that activates the layer.
	Threshold int64
	// Accumulated motion is discarded after this long without motion.
	ThresholdTime time.Duration
	// Quiet period since the last key event before motion counts. 0 disables.
	RequirePriorIdle time.Duration
	// Key positions whose press does not break an active layer.
	ExcludedPositions []uint32
}

// Stats counts controller activity since startup.
type Stats struct {
	Activations          int
	Renewals             int
	TimeoutDeactivations int
	KeyDeactivations     int
	WindowResets         int
	SuppressedMotion     int
	// Pointer events that carried no X/Y motion.
	IgnoredMotion int
}

// State is a point-in-time view of a controller.
type State struct {
	Name         string
	LayerActive  bool
	ActiveLayer  uint8
	AccumulatedX int64
	AccumulatedY int64
	LastActivity time.Time
	Stats        Stats
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
