package lwrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// handleCommand processes a command message from Core.
func (b *Bridge) handleCommand(topicDeviceID string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topicDeviceID
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	dev, ok := b.devices[cmd.DeviceID]
	if !ok {
		b.publishAckError(cmd, "", ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", cmd.DeviceID))
		return
	}
	address := Address(dev.remote, dev.channel)

	msg, err := buildFrame(cmd, dev)
	if err != nil {
		code := ErrCodeInvalidParameters
		if errors.Is(err, ErrInvalidCommand) {
			code = ErrCodeInvalidCommand
		}
		b.publishAckError(cmd, address, code, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	if err := b.transmit(ctx, msg); err != nil {
		code := ErrCodeTransmitFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodeTimeout
		}
		b.publishAckError(cmd, address, code, err.Error())
		return
	}

	b.publishAck(cmd, address)
	b.publishState(NewStateMessage(dev.id, msg, dev.channel, b.pairings.IsPaired(msg)))
}

// buildFrame translates a command into the frame a LightwaveRF remote would
// send for it.
func buildFrame(cmd CommandMessage, dev device) (lightwaverf.Message, error) {
	state := lightwaverf.StateFullOn
	var function lightwaverf.Command

	switch cmd.Command {
	case "on":
		function = lightwaverf.CommandOn
	case "off":
		function = lightwaverf.CommandOff
	case "dim":
		level, err := intParam(cmd.Parameters, "level")
		if err != nil {
			return lightwaverf.Message{}, err
		}
		if state, err = lightwaverf.DimState(level); err != nil {
			return lightwaverf.Message{}, err
		}
		function = lightwaverf.CommandOn
	case "mood":
		mood, err := intParam(cmd.Parameters, "mood")
		if err != nil {
			return lightwaverf.Message{}, err
		}
		if function, err = lightwaverf.MoodCommand(mood); err != nil {
			return lightwaverf.Message{}, err
		}
	default:
		return lightwaverf.Message{}, fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Command)
	}

	return lightwaverf.NewMessage(state, dev.channel, function, dev.remote)
}

// transmit sends msg on the radio. A burst cannot be interrupted, so when
// ctx expires first the send keeps going in the background and the caller
// sees ctx.Err().
func (b *Bridge) transmit(ctx context.Context, msg lightwaverf.Message) error {
	result := make(chan error, 1)
	if !b.track(func() { result <- b.radio.Send(msg) }) {
		return ErrStopped
	}

	select {
	case err := <-result:
		if err != nil {
			b.stats.errors.Inc()
		}
		return err
	case <-ctx.Done():
		b.stats.errors.Inc()
		return ctx.Err()
	}
}

// intParam reads a whole number from decoded JSON parameters.
func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %q must be an integer", key)
	}
	return int(f), nil
}

func (b *Bridge) publishAck(cmd CommandMessage, address string) {
	b.publishAckMessage(NewAckMessage(cmd, AckAccepted, address))
}

func (b *Bridge) publishAckError(cmd CommandMessage, address, code, message string) {
	b.publishAckMessage(NewAckError(cmd, address, code, message))
	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

func (b *Bridge) publishAckMessage(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := mqtt.Topics{}.BridgeAck(Protocol, ack.DeviceID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.stats.errors.Inc()
		b.logError("failed to publish ack", err)
	}
}
