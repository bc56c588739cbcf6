// Package influxdb provides InfluxDB connectivity for the LightwaveRF bridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Measurements
//
//   - lwrf_decoder: decoder diagnostic counters, one point per metrics interval
//   - lwrf_message: one point per accepted remote press
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteMessage(bridgeID, influxdb.MessagePoint{
//	    RemoteID: "010203040506", SwitchID: 1, Command: "on",
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback.
package influxdb
