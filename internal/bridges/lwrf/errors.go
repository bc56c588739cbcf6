package lwrf

import "errors"

// Domain errors for the LightwaveRF bridge package.
var (
	// ErrUnknownDevice is returned when a command names a device that is
	// not in the devices section of the configuration.
	ErrUnknownDevice = errors.New("lwrf: unknown device")

	// ErrInvalidCommand is returned for a command name the bridge does not
	// implement or for out-of-range command parameters.
	ErrInvalidCommand = errors.New("lwrf: invalid command")

	// ErrLearnInProgress is returned when a pair request arrives while
	// another is still waiting for a remote.
	ErrLearnInProgress = errors.New("lwrf: pairing already in progress")

	// ErrRegistryFull is returned when a pairing is added to a registry
	// that already holds its capacity of remotes.
	ErrRegistryFull = errors.New("lwrf: pairing registry full")

	// ErrStopped is returned for work that arrives after Stop.
	ErrStopped = errors.New("lwrf: bridge stopped")

	// ErrNoActivityLog is returned by list_remotes when the bridge runs
	// without an activity log.
	ErrNoActivityLog = errors.New("lwrf: activity log not configured")
)
