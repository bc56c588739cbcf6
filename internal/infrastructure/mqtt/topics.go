package mqtt

import "fmt"

// Topic prefixes.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}/{address}
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("lwrf", "010203040506-1")
//	// Returns: "graylogic/state/lwrf/010203040506-1"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeState returns the topic for device state updates from a bridge.
//
// Example: graylogic/state/lwrf/010203040506-1
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: graylogic/command/lwrf/hall-light
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: graylogic/ack/lwrf/hall-light
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeResponse returns the topic for request responses from a bridge.
//
// Example: graylogic/response/lwrf/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/lwrf
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// BridgeDiscovery returns the topic for device discovery from a bridge.
//
// Example: graylogic/discovery/lwrf
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefixBridge, protocol)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the retained online/offline topic for one client.
//
// Example: graylogic/system/status/lwrf-bridge
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// BridgeCommands returns a pattern matching every command to one bridge.
//
// Pattern: graylogic/command/lwrf/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// BridgeRequests returns a pattern matching every request to one bridge.
//
// Pattern: graylogic/request/lwrf/+
func (Topics) BridgeRequests(protocol string) string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefixBridge, protocol)
}
