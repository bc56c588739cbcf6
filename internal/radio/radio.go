package radio

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// Driver names accepted by Open.
const (
	DriverGPIO     = "gpio"
	DriverLoopback = "loopback"
)

// DefaultConsumer labels the requested lines in the kernel.
const DefaultConsumer = "lwrf-bridge"

// Device is a 433MHz receiver and transmitter pair.
type Device interface {
	lightwaverf.EdgeSource
	lightwaverf.Line

	// Name identifies the device in logs and health reports.
	Name() string

	// CanTransmit reports whether Emit can drive a transmitter.
	CanTransmit() bool

	// Close releases the lines. Watch handlers are not called afterwards.
	Close() error
}

// Config selects and configures a radio driver.
type Config struct {
	// Driver is "gpio" or "loopback".
	Driver string

	// Chip is the GPIO character device, e.g. "gpiochip0".
	Chip string

	// RXLine is the line offset of the receiver data pin.
	RXLine int

	// TXLine is the line offset of the transmitter data pin.
	// Negative disables transmitting.
	TXLine int

	// Consumer labels the lines; defaults to DefaultConsumer.
	Consumer string
}

// Open creates the device described by cfg.
//
// Returns:
//   - Device: ready to Watch and Emit
//   - error: ErrUnknownDriver, ErrUnsupported or a line request failure
func Open(cfg Config) (Device, error) {
	if cfg.Consumer == "" {
		cfg.Consumer = DefaultConsumer
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverGPIO:
		dev, err := openGPIO(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening gpio radio on %s: %w", cfg.Chip, err)
		}
		return dev, nil
	case DriverLoopback, "":
		return NewLoopback(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
