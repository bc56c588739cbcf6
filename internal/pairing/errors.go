package pairing

import "errors"

// Domain errors for the pairing package.
//
// A full registry, a learn timeout and a lookup miss are outcomes, not
// errors. These errors cover the persistent store.
var (
	// ErrOutOfRange is returned when a store access falls outside the region.
	ErrOutOfRange = errors.New("pairing: access outside store region")

	// ErrStoreRead is returned when the pairing region cannot be read.
	ErrStoreRead = errors.New("pairing: store read failed")

	// ErrStoreWrite is returned when the pairing region cannot be written.
	ErrStoreWrite = errors.New("pairing: store write failed")

	// ErrNotLoaded is returned when mutating a registry before Load.
	ErrNotLoaded = errors.New("pairing: registry not loaded")
)
