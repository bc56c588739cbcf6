package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementDecoder = "lwrf_decoder"
	MeasurementMessage = "lwrf_message"
)

// MessagePoint describes one accepted LightwaveRF message.
type MessagePoint struct {
	RemoteID string
	SwitchID int
	Command  string
	Paired   bool
	At       time.Time
}

// WriteDecoderStats writes the decoder's cumulative counters as one point.
//
// Counters are monotonic since bridge start; use a derivative in queries
// to get rates.
//
// Example:
//
//	client.WriteDecoderStats("lwrf-bridge-01", map[string]uint64{
//	    "messages": 42, "out_of_band": 3,
//	})
func (c *Client) WriteDecoderStats(bridgeID string, counters map[string]uint64) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(decoderPoint(bridgeID, counters, time.Now()))
}

// WriteMessage records one accepted remote press.
func (c *Client) WriteMessage(bridgeID string, m MessagePoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(messagePoint(bridgeID, m))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func decoderPoint(bridgeID string, counters map[string]uint64, at time.Time) *write.Point {
	fields := make(map[string]any, len(counters))
	for name, v := range counters {
		fields[name] = v
	}
	return write.NewPoint(
		MeasurementDecoder,
		map[string]string{"bridge_id": bridgeID},
		fields,
		at,
	)
}

func messagePoint(bridgeID string, m MessagePoint) *write.Point {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	// Remote and command are low-cardinality in a house: at most a few
	// dozen remotes, each with 16 channels.
	return write.NewPoint(
		MeasurementMessage,
		map[string]string{
			"bridge_id": bridgeID,
			"remote_id": m.RemoteID,
			"command":   m.Command,
		},
		map[string]any{
			"switch_id": m.SwitchID,
			"paired":    m.Paired,
		},
		at,
	)
}
