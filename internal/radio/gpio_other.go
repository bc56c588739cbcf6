//go:build !linux

package radio

import "github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"

// gpioDevice is unavailable outside Linux; openGPIO always fails.
type gpioDevice struct{}

func openGPIO(Config) (*gpioDevice, error) {
	return nil, ErrUnsupported
}

func (*gpioDevice) Name() string { return DriverGPIO }
func (*gpioDevice) CanTransmit() bool { return false }
func (*gpioDevice) Watch(func(lightwaverf.Edge)) error { return ErrUnsupported }
func (*gpioDevice) Emit([]lightwaverf.Pulse) error { return ErrUnsupported }
func (*gpioDevice) Close() error { return nil }
