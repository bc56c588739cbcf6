package lwrf

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-lwrf/internal/activity"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
)

// Pairing management and diagnostics shared by the MQTT request handlers
// and the local HTTP API.

// PairingView is the JSON form of a pairing entry.
type PairingView struct {
	RemoteID string `json:"remote_id"`
	Channel  *int   `json:"channel,omitempty"`
	SwitchID string `json:"switch_id"`
	Address  string `json:"address,omitempty"`
}

// ViewPairing converts a registry entry. Channel and Address are omitted
// when the stored switch byte is not a valid nibble symbol.
func ViewPairing(e pairing.Entry) PairingView {
	v := PairingView{
		RemoteID: e.Remote.String(),
		SwitchID: fmt.Sprintf("0x%02x", e.SwitchID),
	}
	if ch, ok := lightwaverf.DecodeNibble(e.SwitchID); ok {
		n := int(ch)
		v.Channel = &n
		v.Address = Address(e.Remote, ch)
	}
	return v
}

// PairingList is a snapshot of the pairing registry.
type PairingList struct {
	Count     int           `json:"count"`
	Capacity  int           `json:"capacity"`
	Corrupted bool          `json:"corrupted"`
	Pairings  []PairingView `json:"pairings"`
}

// DiagnosticsReport is the decoder and bridge counter snapshot.
type DiagnosticsReport struct {
	Revision   string           `json:"revision"`
	Statistics BridgeStatistics `json:"statistics"`
	Violations uint64           `json:"violations"`
}

// Pairings returns the current registry contents.
func (b *Bridge) Pairings() PairingList {
	entries := b.pairings.Entries()
	views := make([]PairingView, 0, len(entries))
	for _, e := range entries {
		views = append(views, ViewPairing(e))
	}
	return PairingList{
		Count:     len(entries),
		Capacity:  pairing.Capacity,
		Corrupted: b.pairings.Corrupted(),
		Pairings:  views,
	}
}

// AddPairing pairs a remote on a channel without waiting for a press.
// Like Learn, it does not check for an existing entry.
//
// Errors wrap lightwaverf.ErrInvalidRemoteID, lightwaverf.ErrInvalidChannel
// or ErrRegistryFull for bad input and a full registry.
func (b *Bridge) AddPairing(ctx context.Context, remoteID string, channel int) (PairingView, error) {
	remote, err := lightwaverf.ParseRemoteID(remoteID)
	if err != nil {
		return PairingView{}, err
	}
	if channel < 0 || channel > maxChannel {
		return PairingView{}, fmt.Errorf("%w: %d", lightwaverf.ErrInvalidChannel, channel)
	}
	symbol, err := lightwaverf.EncodeNibble(byte(channel))
	if err != nil {
		return PairingView{}, err
	}

	entry, added, err := b.pairings.Add(ctx, remote, symbol)
	if err != nil {
		b.stats.errors.Inc()
		return PairingView{}, fmt.Errorf("adding pairing: %w", err)
	}
	if !added {
		return PairingView{}, fmt.Errorf("%w: capacity %d", ErrRegistryFull, pairing.Capacity)
	}

	b.logInfo("pairing added", "remote_id", remote.String(), "channel", channel)
	return ViewPairing(entry), nil
}

// ErasePairings clears the registry and the activity log. It returns the
// number of pairings removed.
func (b *Bridge) ErasePairings(ctx context.Context) (int, error) {
	erased := b.pairings.Count()
	if err := b.pairings.EraseAll(ctx); err != nil {
		b.stats.errors.Inc()
		return 0, fmt.Errorf("erasing pairings: %w", err)
	}
	if b.activity != nil {
		if err := b.activity.Clear(ctx); err != nil {
			b.logError("failed to clear activity log", err)
		}
	}
	b.logInfo("pairings erased", "count", erased)
	return erased, nil
}

// Remotes lists recently heard remotes, most recent first.
func (b *Bridge) Remotes(ctx context.Context, limit int) ([]activity.Entry, error) {
	if b.activity == nil {
		return nil, ErrNoActivityLog
	}
	remotes, err := b.activity.List(ctx, limit)
	if err != nil {
		b.stats.errors.Inc()
		return nil, fmt.Errorf("listing remotes: %w", err)
	}
	return remotes, nil
}

// Diagnostics returns the protocol revision and all counters.
func (b *Bridge) Diagnostics() DiagnosticsReport {
	stats := b.Statistics()
	return DiagnosticsReport{
		Revision:   b.radio.Revision().Name,
		Statistics: stats,
		Violations: stats.Decoder.Violations(),
	}
}

// Snapshot returns the values reported in health messages.
func (b *Bridge) Snapshot() HealthSnapshot {
	return b.healthSnapshot()
}
