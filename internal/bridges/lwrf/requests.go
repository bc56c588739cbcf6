package lwrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
)

const (
	requestTimeout        = 10 * time.Second
	defaultListRemotes    = 50
	maxLearnTimeoutSecond = 300
	maxChannel            = 15
)

// handleRequest processes a request message from Core.
func (b *Bridge) handleRequest(topicRequestID string, payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = topicRequestID
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	// pair answers asynchronously once a remote is heard.
	if req.Action == "pair" {
		if resp, started := b.startLearn(req); !started {
			b.publishResponse(resp)
		}
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, requestTimeout)
	defer cancel()

	var resp ResponseMessage
	switch req.Action {
	case "add_pairing":
		resp = b.handleAddPairing(ctx, req)
	case "erase_pairings":
		resp = b.handleErasePairings(ctx, req)
	case "list_pairings":
		resp = b.handleListPairings(req)
	case "list_remotes":
		resp = b.handleListRemotes(ctx, req)
	case "diagnostics":
		resp = b.handleDiagnostics(req)
	default:
		resp = NewErrorResponse(req, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown action: %s", req.Action))
	}

	b.publishResponse(resp)
}

func (b *Bridge) publishResponse(resp ResponseMessage) {
	payload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}

	topic := mqtt.Topics{}.BridgeResponse(Protocol, resp.RequestID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.stats.errors.Inc()
		b.logError("failed to publish response", err)
	}
}

// startLearn launches a pair request. When it cannot start, the returned
// response explains why.
func (b *Bridge) startLearn(req RequestMessage) (ResponseMessage, bool) {
	timeout := b.learnTimeout
	if _, ok := req.Parameters["timeout_seconds"]; ok {
		secs, err := intParam(req.Parameters, "timeout_seconds")
		if err != nil || secs <= 0 || secs > maxLearnTimeoutSecond {
			return NewErrorResponse(req, ErrCodeInvalidParameters,
				fmt.Sprintf("timeout_seconds must be 1..%d", maxLearnTimeoutSecond)), false
		}
		timeout = time.Duration(secs) * time.Second
	}

	if !b.learner.begin() {
		return NewErrorResponse(req, ErrCodeBusy, ErrLearnInProgress.Error()), false
	}

	started := b.track(func() {
		resp := b.learn(req, timeout)
		// Release before answering so the next press is published.
		b.learner.end()
		b.publishResponse(resp)
	})
	if !started {
		b.learner.end()
		return NewErrorResponse(req, ErrCodeBridgeError, ErrStopped.Error()), false
	}
	return ResponseMessage{}, true
}

func (b *Bridge) learn(req RequestMessage, timeout time.Duration) ResponseMessage {
	outcome, entry, err := b.pairings.Learn(b.ctx, b.learner, timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return NewErrorResponse(req, ErrCodeBridgeError, "bridge stopping")
		}
		b.stats.errors.Inc()
		b.logError("pairing failed", err)
		return NewErrorResponse(req, ErrCodeBridgeError, err.Error())
	}

	data := map[string]any{
		"outcome": outcome.String(),
		"count":   b.pairings.Count(),
	}
	switch outcome {
	case pairing.LearnAdded:
		data["pairing"] = ViewPairing(entry)
		b.logInfo("remote paired",
			"remote_id", entry.Remote.String(),
			"switch_id", fmt.Sprintf("0x%02x", entry.SwitchID))
	case pairing.LearnFull:
		return NewErrorResponse(req, ErrCodeRegistryFull,
			fmt.Sprintf("pairing registry holds %d remotes", pairing.Capacity))
	case pairing.LearnTimeout:
		b.logInfo("pair request timed out", "timeout", timeout)
	}
	return NewResponse(req, data)
}

func (b *Bridge) handleAddPairing(ctx context.Context, req RequestMessage) ResponseMessage {
	rawRemote, _ := req.Parameters["remote_id"].(string)
	channel, err := intParam(req.Parameters, "channel")
	if err != nil {
		return NewErrorResponse(req, ErrCodeInvalidParameters, err.Error())
	}

	view, err := b.AddPairing(ctx, rawRemote, channel)
	switch {
	case errors.Is(err, ErrRegistryFull):
		return NewErrorResponse(req, ErrCodeRegistryFull,
			fmt.Sprintf("pairing registry holds %d remotes", pairing.Capacity))
	case errors.Is(err, lightwaverf.ErrInvalidRemoteID), errors.Is(err, lightwaverf.ErrInvalidChannel):
		return NewErrorResponse(req, ErrCodeInvalidParameters, err.Error())
	case err != nil:
		return NewErrorResponse(req, ErrCodeBridgeError, err.Error())
	}

	return NewResponse(req, map[string]any{
		"pairing": view,
		"count":   b.pairings.Count(),
	})
}

func (b *Bridge) handleErasePairings(ctx context.Context, req RequestMessage) ResponseMessage {
	erased, err := b.ErasePairings(ctx)
	if err != nil {
		return NewErrorResponse(req, ErrCodeBridgeError, err.Error())
	}
	return NewResponse(req, map[string]any{"erased": erased})
}

func (b *Bridge) handleListPairings(req RequestMessage) ResponseMessage {
	list := b.Pairings()
	return NewResponse(req, map[string]any{
		"count":     list.Count,
		"capacity":  list.Capacity,
		"corrupted": list.Corrupted,
		"pairings":  list.Pairings,
	})
}

func (b *Bridge) handleListRemotes(ctx context.Context, req RequestMessage) ResponseMessage {
	limit := defaultListRemotes
	if _, ok := req.Parameters["limit"]; ok {
		n, err := intParam(req.Parameters, "limit")
		if err != nil {
			return NewErrorResponse(req, ErrCodeInvalidParameters, err.Error())
		}
		limit = n
	}

	remotes, err := b.Remotes(ctx, limit)
	switch {
	case errors.Is(err, ErrNoActivityLog):
		return NewErrorResponse(req, ErrCodeNotConfigured, err.Error())
	case err != nil:
		return NewErrorResponse(req, ErrCodeBridgeError, err.Error())
	}
	return NewResponse(req, map[string]any{"remotes": remotes})
}

func (b *Bridge) handleDiagnostics(req RequestMessage) ResponseMessage {
	d := b.Diagnostics()
	return NewResponse(req, map[string]any{
		"revision":   d.Revision,
		"statistics": d.Statistics,
		"violations": d.Violations,
	})
}
