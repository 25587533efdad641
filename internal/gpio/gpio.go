// Package gpio drives the layer indicator LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator shows whether a non-default layer is active.
type Indicator interface {
	// Set drives the line high (on) or low (off).
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Nop is an Indicator that does nothing. Used when no pin is configured.
type Nop struct{}

func (Nop) Set(bool) error { return nil }
func (Nop) Close() error   { return nil }
