//go:build linux

package radio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// gpioDevice drives a receiver and a transmitter through the Linux GPIO
// character device. Edge timestamps come from the kernel, so they are not
// affected by Go scheduling latency.
type gpioDevice struct {
	cfg Config

	mu     sync.Mutex
	rx     *gpiocdev.Line
	tx     *gpiocdev.Line
	closed bool

	// txMu serialises Emit.
	txMu sync.Mutex
}

func openGPIO(cfg Config) (*gpioDevice, error) {
	d := &gpioDevice{cfg: cfg}

	if cfg.TXLine >= 0 {
		tx, err := gpiocdev.RequestLine(cfg.Chip, cfg.TXLine,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(cfg.Consumer),
		)
		if err != nil {
			return nil, fmt.Errorf("requesting tx line %d: %w", cfg.TXLine, err)
		}
		d.tx = tx
	}
	return d, nil
}

// Name implements Device.
func (d *gpioDevice) Name() string {
	return fmt.Sprintf("%s/%s:%d", DriverGPIO, d.cfg.Chip, d.cfg.RXLine)
}

// CanTransmit implements Device.
func (d *gpioDevice) CanTransmit() bool {
	return d.tx != nil
}

// Watch requests the receiver line with edge detection on both edges.
// Only one watcher is supported.
func (d *gpioDevice) Watch(handler func(lightwaverf.Edge)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.rx != nil {
		return ErrAlreadyWatching
	}

	rx, err := gpiocdev.RequestLine(d.cfg.Chip, d.cfg.RXLine,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(d.cfg.Consumer),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			level := lightwaverf.Low
			if evt.Type == gpiocdev.LineEventRisingEdge {
				level = lightwaverf.High
			}
			handler(lightwaverf.Edge{At: evt.Timestamp, Level: level})
		}),
	)
	if err != nil {
		return fmt.Errorf("requesting rx line %d: %w", d.cfg.RXLine, err)
	}
	d.rx = rx
	return nil
}

// Emit drives the transmitter. The goroutine is pinned to its OS thread
// and busy-waits each pulse against an absolute deadline so that errors
// do not accumulate over the burst. The line is left LOW.
func (d *gpioDevice) Emit(train []lightwaverf.Pulse) error {
	if d.tx == nil {
		return ErrNoTransmitter
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	deadline := time.Now()
	for _, p := range train {
		if err := d.tx.SetValue(int(p.Level)); err != nil {
			_ = d.tx.SetValue(0) //nolint:errcheck // Best effort, already failing
			return fmt.Errorf("setting tx line: %w", err)
		}
		deadline = deadline.Add(p.Duration)
		for time.Now().Before(deadline) {
		}
	}
	return d.tx.SetValue(0)
}

// Close releases both lines.
func (d *gpioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	if d.rx != nil {
		if err := d.rx.Close(); err != nil {
			firstErr = fmt.Errorf("closing rx line: %w", err)
		}
	}
	if d.tx != nil {
		if err := d.tx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing tx line: %w", err)
		}
	}
	return firstErr
}
