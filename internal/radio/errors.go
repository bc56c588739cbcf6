package radio

import "errors"

// Domain errors for the radio package.
var (
	// ErrUnknownDriver is returned by Open for an unrecognised driver name.
	ErrUnknownDriver = errors.New("radio: unknown driver")

	// ErrUnsupported is returned when a driver is not available on this platform.
	ErrUnsupported = errors.New("radio: driver not supported on this platform")

	// ErrAlreadyWatching is returned when a single-watcher device is watched twice.
	ErrAlreadyWatching = errors.New("radio: receiver already has a watcher")

	// ErrNoTransmitter is returned by Emit when no transmit line is configured.
	ErrNoTransmitter = errors.New("radio: no transmit line")

	// ErrClosed is returned when using a closed device.
	ErrClosed = errors.New("radio: device closed")
)
