//go:build linux

package input

import (
	"fmt"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// DeviceReader reads events from an evdev character device.
type DeviceReader struct {
	path string
	name string
	dev  *evdev.InputDevice
}

// OpenDevice opens an input device. With grab set the device is taken
// exclusively so its events are not delivered to other readers.
func OpenDevice(path string, grab bool) (*DeviceReader, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input device %s: %w", path, err)
	}

	if grab {
		if err := dev.Grab(); err != nil {
			dev.Close()
			return nil, fmt.Errorf("grab input device %s: %w", path, err)
		}
	}

	name, err := dev.Name()
	if err != nil {
		name = path
	}

	return &DeviceReader{path: path, name: name, dev: dev}, nil
}

// Path returns the device node path.
func (r *DeviceReader) Path() string { return r.path }

// Name returns the kernel's device name.
func (r *DeviceReader) Name() string { return r.name }

// Read blocks until a motion or key event arrives.
func (r *DeviceReader) Read() (Event, error) {
	for {
		ev, err := r.dev.ReadOne()
		if err != nil {
			return Event{}, fmt.Errorf("read %s: %w", r.path, err)
		}
		raw := RawEvent{
			Time:  time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000),
			Type:  uint16(ev.Type),
			Code:  uint16(ev.Code),
			Value: ev.Value,
		}
		if out, ok := Translate(r.path, raw); ok {
			return out, nil
		}
	}
}

// Close releases the device.
func (r *DeviceReader) Close() error {
	if err := r.dev.Close(); err != nil {
		return fmt.Errorf("close %s: %w", r.path, err)
	}
	return nil
}

// ListDevices returns the input devices visible under /dev/input.
func ListDevices() ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		out = append(out, DeviceInfo{Path: p.Path, Name: p.Name})
	}
	return out, nil
}
