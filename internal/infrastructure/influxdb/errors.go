package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is switched off;
	// the bridge then runs without a client.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	ErrNotConnected     = errors.New("influxdb: no server connection")
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrWriteFailed wraps batch errors handed to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
