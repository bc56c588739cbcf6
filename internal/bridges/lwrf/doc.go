// Package lwrf implements the LightwaveRF bridge for Gray Logic.
//
// The bridge connects a 433 MHz LightwaveRF transceiver to the MQTT bus.
// Frames heard from wall switches and handsets become state messages;
// commands from Core are transmitted as one of the configured devices.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │  LWRF Bridge    │  transceiver
//	│      Core       │◄────────►│   (this pkg)    │◄────────────► 433 MHz
//	└─────────────────┘          └─────────────────┘
//
// # Receive Path
//
// A single goroutine (Run) consumes the transceiver. Every remote repeats a
// frame 12 times per press; identical frames inside the dedupe window are
// dropped. While a pair request is pending the next fresh frame is handed to
// the pairing registry instead of being published. Otherwise the frame is
// checked against the registry, published retained on
// graylogic/state/lwrf/{remote_id}-{channel}, upserted into the activity log
// and written to InfluxDB.
//
// # Commands and Requests
//
// Commands (on, off, dim, mood) arrive on graylogic/command/lwrf/{device_id}
// and are acknowledged on graylogic/ack/lwrf/{device_id}. Requests (pair,
// add_pairing, erase_pairings, list_pairings, list_remotes, diagnostics)
// arrive on graylogic/request/lwrf/{request_id} and are answered on
// graylogic/response/lwrf/{request_id}.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package lwrf
