//go:build !linux

package input

import "errors"

// DeviceReader is not available on non-Linux platforms.
type DeviceReader struct{}

// OpenDevice returns an error on non-Linux platforms.
func OpenDevice(path string, grab bool) (*DeviceReader, error) {
	return nil, errors.New("input: evdev not supported on this platform (requires Linux)")
}

func (r *DeviceReader) Path() string { return "" }

func (r *DeviceReader) Name() string { return "" }

// Read is not implemented on non-Linux platforms.
func (r *DeviceReader) Read() (Event, error) {
	return Event{}, errors.New("input: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *DeviceReader) Close() error {
	return nil
}

// ListDevices returns an error on non-Linux platforms.
func ListDevices() ([]DeviceInfo, error) {
	return nil, errors.New("input: not supported")
}
