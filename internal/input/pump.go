package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrNoReaders is returned by Pump when every reader has failed.
var ErrNoReaders = errors.New("no input devices left")

// Pump reads every reader on its own goroutine and forwards events to out.
// A failing reader is logged and dropped while the others keep running.
// Pump returns nil once ctx is cancelled, or an error wrapping ErrNoReaders
// when the last reader has failed. All readers are closed before it returns.
func Pump(ctx context.Context, readers []Reader, out chan<- Event, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	stop := make(chan struct{})
	closed := make(chan struct{})

	// Closing the readers is what unblocks Read.
	go func() {
		defer close(closed)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		for _, r := range readers {
			if err := r.Close(); err != nil {
				logger.Debug("close reader", "device", r.Path(), "error", err)
			}
		}
	}()

	var g errgroup.Group
	for _, r := range readers {
		r := r
		g.Go(func() error {
			for {
				ev, err := r.Read()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("input device failed", "device", r.Path(), "error", err)
					return fmt.Errorf("device %s: %w", r.Path(), err)
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	err := g.Wait()
	close(stop)
	<-closed

	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return ErrNoReaders
	}
	return fmt.Errorf("%w: %w", ErrNoReaders, err)
}
