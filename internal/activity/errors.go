package activity

import "errors"

// Domain errors for the activity log.
var (
	// ErrRemoteRequired is returned when an entry has no remote ID.
	ErrRemoteRequired = errors.New("activity: remote id is required")

	// ErrInvalidSwitch is returned when an entry's switch ID is outside 0-15.
	ErrInvalidSwitch = errors.New("activity: switch id out of range")
)
