// Package input reads pointer motion and key events from Linux input
// devices. The real implementation uses the evdev character devices.
// The fake implementation allows testing without hardware.
package input

import (
	"strconv"
	"time"

	"github.com/sweeney/layer-threshold/internal/logic"
)

// Linux input event types and codes (from <linux/input-event-codes.h>).
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02

	REL_X      = 0x00
	REL_Y      = 0x01
	REL_HWHEEL = 0x06
	REL_WHEEL  = 0x08

	BTN_MISC          = 0x100
	BTN_LEFT          = 0x110
	KEY_OK            = 0x160
	BTN_DPAD_UP       = 0x220
	BTN_DPAD_RIGHT    = 0x223
	BTN_TRIGGER_HAPPY = 0x2c0
	BTN_TRIGGER_LAST  = 0x2e7
)

// Key event values.
const (
	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

// Kind distinguishes motion from key events.
type Kind int

const (
	KindMotion Kind = iota + 1
	KindKey
)

// Event is a translated input event tagged with its source device.
type Event struct {
	Device string
	Kind   Kind
	Motion logic.MotionEvent
	Key    logic.KeyEvent
}

// RawEvent mirrors struct input_event.
type RawEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// DeviceInfo describes an available input device.
type DeviceInfo struct {
	Path string
	Name string
}

// Reader reads translated events from one device.
type Reader interface {
	// Path identifies the device.
	Path() string

	// Read blocks until the next motion or key event.
	Read() (Event, error)

	// Close releases the device. A blocked Read returns an error.
	Close() error
}

// Translate converts a raw evdev event. ok is false for events that carry
// nothing for the controllers (sync reports, autorepeat, other types).
// Key positions are the evdev key codes. Button codes (mouse, touchpad,
// joystick) are pointer events with AxisButton, not key positions, so
// they go through the device's processors instead of the key bus.
func Translate(device string, raw RawEvent) (ev Event, ok bool) {
	switch raw.Type {
	case EV_REL:
		return Event{
			Device: device,
			Kind:   KindMotion,
			Motion: logic.MotionEvent{Axis: relAxis(raw.Code), Delta: raw.Value},
		}, true
	case EV_KEY:
		if raw.Value != keyPress && raw.Value != keyRelease {
			return Event{}, false
		}
		if isButton(raw.Code) {
			return Event{
				Device: device,
				Kind:   KindMotion,
				Motion: logic.MotionEvent{Axis: logic.AxisButton},
			}, true
		}
		return Event{
			Device: device,
			Kind:   KindKey,
			Key: logic.KeyEvent{
				Position: uint32(raw.Code),
				Pressed:  raw.Value == keyPress,
				Time:     raw.Time,
			},
		}, true
	}
	return Event{}, false
}

func isButton(code uint16) bool {
	switch {
	case code >= BTN_MISC && code < KEY_OK:
		return true
	case code >= BTN_DPAD_UP && code <= BTN_DPAD_RIGHT:
		return true
	case code >= BTN_TRIGGER_HAPPY && code <= BTN_TRIGGER_LAST:
		return true
	}
	return false
}

func relAxis(code uint16) logic.Axis {
	switch code {
	case REL_X:
		return logic.AxisX
	case REL_Y:
		return logic.AxisY
	case REL_WHEEL:
		return logic.AxisWheel
	case REL_HWHEEL:
		return logic.AxisHWheel
	default:
		return logic.Axis("REL_" + strconv.Itoa(int(code)))
	}
}
