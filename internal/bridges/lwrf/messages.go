package lwrf

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// Protocol is the protocol segment of every bridge topic.
const Protocol = "lwrf"

// CommandMessage is sent from Core to Bridge to transmit a command.
// Topic: graylogic/command/lwrf/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the configured device to transmit as. When empty the
	// last topic segment is used.
	DeviceID string `json:"device_id"`

	// Command is one of "on", "off", "dim" or "mood".
	Command string `json:"command"`

	// Parameters contains command-specific values.
	//   {"level": 0..31} for dim
	//   {"mood": 0..4} for mood
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// UnmarshalJSON accepts an RFC 3339 timestamp or none at all.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was transmitted.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be transmitted.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the transmission did not finish within the
	// command timeout. It may still complete.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from Bridge to Core to acknowledge a command.
// Topic: graylogic/ack/lwrf/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Address is "{remote_id}-{channel}" for the transmitted frame.
	Address string `json:"address,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeTransmitFailed    = "TRANSMIT_FAILED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeRegistryFull      = "REGISTRY_FULL"
	ErrCodeBusy              = "BUSY"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is sent from Bridge to Core for every accepted frame, received
// or transmitted.
// Topic: graylogic/state/lwrf/{remote_id}-{channel}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is set when the remote and channel match a configured device.
	DeviceID string `json:"device_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// State is {"command", "level"?, "mood"?, "paired", "raw"}.
	State map[string]any `json:"state"`

	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/lwrf
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Revision is the protocol revision the decoder runs.
	Revision string `json:"revision"`

	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	PairedRemotes  int `json:"paired_remotes"`
	DevicesManaged int `json:"devices_managed"`

	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	// MessagesReceived counts frames taken from the decoder, repeats included.
	MessagesReceived uint64 `json:"messages_received"`

	// MessagesSent counts completed transmissions.
	MessagesSent uint64 `json:"messages_sent"`

	// Duplicates counts repeats dropped inside the dedupe window.
	Duplicates uint64 `json:"duplicates"`

	// Unpaired counts frames dropped because require_pairing is set.
	Unpaired uint64 `json:"unpaired"`

	// Malformed counts frames whose switch byte is not a valid symbol.
	Malformed uint64 `json:"malformed"`

	// Errors counts failed commands and publishes.
	Errors uint64 `json:"errors"`

	Decoder lightwaverf.Diagnostics `json:"decoder"`
}

// RequestMessage is sent from Core to Bridge for request/response operations.
// Topic: graylogic/request/lwrf/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is one of "pair", "add_pairing", "erase_pairings",
	// "list_pairings", "list_remotes" or "diagnostics".
	Action string `json:"action"`

	// Parameters contains action-specific values.
	//   pair:         {"timeout_seconds": 30}
	//   add_pairing:  {"remote_id": "0f03c2e7b6a0", "channel": 2}
	//   list_remotes: {"limit": 20}
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/lwrf/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiscoveryMessage announces a remote heard while require_pairing rejected it.
// Topic: graylogic/discovery/lwrf
type DiscoveryMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Bridge    string             `json:"bridge"`
	Devices   []DiscoveredDevice `json:"devices"`
}

// DiscoveredDevice is one unpaired remote and channel.
type DiscoveredDevice struct {
	Protocol     string   `json:"protocol"`
	Address      string   `json:"address"`
	RemoteID     string   `json:"remote_id"`
	Channel      int      `json:"channel"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage describes msg for the state topic.
func NewStateMessage(deviceID string, msg lightwaverf.Message, channel byte, paired bool) StateMessage {
	cmd := msg.Command()
	state := map[string]any{
		"command": cmd.String(),
		"paired":  paired,
		"raw":     msg.String(),
	}
	if level, ok := msg.State().DimLevel(); ok && cmd == lightwaverf.CommandOn {
		state["command"] = "dim"
		state["level"] = level
	}
	if mood, ok := cmd.Mood(); ok {
		state["command"] = "mood"
		state["mood"] = mood
	}

	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  Protocol,
		Address:   Address(msg.Remote(), channel),
	}
}

// NewResponse creates a successful response.
func NewResponse(req RequestMessage, data map[string]any) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      data,
	}
}

// NewErrorResponse creates a failed response.
func NewErrorResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error: &ResponseError{
			Code:    code,
			Message: message,
		},
	}
}

// NewDiscoveryMessage announces one remote channel.
func NewDiscoveryMessage(bridgeID string, remote lightwaverf.RemoteID, channel byte) DiscoveryMessage {
	return DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    bridgeID,
		Devices: []DiscoveredDevice{{
			Protocol:     Protocol,
			Address:      Address(remote, channel),
			RemoteID:     remote.String(),
			Channel:      int(channel),
			Type:         "remote",
			Capabilities: []string{"on_off", "dim", "mood"},
		}},
	}
}

// Address is the topic address of a remote channel: "{remote_id}-{channel}".
func Address(remote lightwaverf.RemoteID, channel byte) string {
	return fmt.Sprintf("%s-%d", remote.String(), channel)
}
