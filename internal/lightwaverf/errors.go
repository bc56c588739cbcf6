package lightwaverf

import "errors"

// Domain errors for the lightwaverf package.
//
// Timing violations and sentinel mismatches are not errors: they are counted
// in Diagnostics and the packet is dropped. These errors cover setup and I/O.
var (
	// ErrUnknownRevision is returned when a revision name is not recognised.
	ErrUnknownRevision = errors.New("lightwaverf: unknown protocol revision")

	// ErrInvalidRevision is returned when a revision's timings are inconsistent.
	ErrInvalidRevision = errors.New("lightwaverf: invalid protocol revision")

	// ErrNoInput is returned by Setup when no edge source is configured.
	ErrNoInput = errors.New("lightwaverf: no edge source")

	// ErrNoOutput is returned by Send when the transceiver has no output line.
	ErrNoOutput = errors.New("lightwaverf: no output line")

	// ErrClosed is returned when using a transceiver after Close.
	ErrClosed = errors.New("lightwaverf: transceiver closed")

	// ErrInvalidRemoteID is returned when a remote identity cannot be parsed.
	ErrInvalidRemoteID = errors.New("lightwaverf: invalid remote id")

	// ErrInvalidChannel is returned when a channel does not fit in a nibble.
	ErrInvalidChannel = errors.New("lightwaverf: channel out of range")

	// ErrInvalidDimLevel is returned for a dim level outside the table.
	ErrInvalidDimLevel = errors.New("lightwaverf: dim level out of range")

	// ErrInvalidMood is returned for a mood index outside the table.
	ErrInvalidMood = errors.New("lightwaverf: mood out of range")

	// ErrSendFailed is returned when the output line reports an error.
	ErrSendFailed = errors.New("lightwaverf: send failed")
)
