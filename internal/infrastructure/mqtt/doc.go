// Package mqtt provides MQTT client connectivity for the LightwaveRF bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge publishes decoded remote presses as state messages and takes
// transmit commands and pairing requests from the broker:
//
//	433 MHz remotes ↔ lwrf-bridge ↔ MQTT Broker ↔ home automation core
//
// Each client announces itself on graylogic/system/status/{client_id}:
// "online" after every (re)connect, "offline" with reason
// "graceful_shutdown" on Close, and the same topic is the LWT with reason
// "unexpected_disconnect".
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Supply the password through GRAYLOGIC_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.BridgeState("lwrf", "010203040506-1")
//	err = client.Publish(topic, payload, 1, true)
package mqtt
