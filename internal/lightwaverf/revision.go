package lightwaverf

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTick is the quantum used to measure pulse durations.
const DefaultTick = 50 * time.Microsecond

// SentinelMode selects how the first byte of a packet is validated.
type SentinelMode int

const (
	// SentinelRecover requires byte 0 to be the sentinel, but accepts the
	// pattern produced by a lost start marker and re-synchronises on it.
	SentinelRecover SentinelMode = iota

	// SentinelStrict requires byte 0 to be the sentinel. Anything else
	// discards the packet.
	SentinelStrict

	// SentinelOff accepts any first byte.
	SentinelOff
)

// String returns the configuration name of the mode.
func (m SentinelMode) String() string {
	switch m {
	case SentinelRecover:
		return "recover"
	case SentinelStrict:
		return "strict"
	case SentinelOff:
		return "off"
	default:
		return fmt.Sprintf("SentinelMode(%d)", int(m))
	}
}

// TickRange is an inclusive range of pulse durations measured in ticks.
type TickRange struct {
	Min uint32
	Max uint32
}

// Contains reports whether units falls inside the range.
func (r TickRange) Contains(units uint32) bool {
	return units >= r.Min && units <= r.Max
}

// Revision describes one variant of the LightwaveRF line protocol.
//
// The receive side uses Tick, ShortPulse, LongPulse and Sentinel. The
// transmit side derives its pulse train from BitDelay, Space, ZeroDelay and
// PostZeroDelay, which Validate checks against the receive bands so that a
// transceiver always decodes what it sends.
type Revision struct {
	// Name identifies the revision in configuration files.
	Name string

	// Tick is the duration of one timing unit.
	Tick time.Duration

	// ShortPulse is the band of a HIGH mark ("1" or a marker).
	ShortPulse TickRange

	// LongPulse is the band of a LOW period encoding a "0".
	LongPulse TickRange

	// BitDelay is the length of a "1" cell: HIGH mark plus LOW space.
	BitDelay time.Duration

	// Space is the short spacer between marks. It must stay below the
	// noise floor (ShortPulse.Min) so the receiver ignores it.
	Space time.Duration

	// ZeroDelay is the LOW period that encodes a "0".
	ZeroDelay time.Duration

	// PostZeroDelay is an extra LOW period appended after every "0".
	PostZeroDelay time.Duration

	// Sentinel selects the first-byte check.
	Sentinel SentinelMode

	// Repeats is the number of times a message is sent per transmission.
	Repeats int

	// RepeatGap is the dead time after each repeat.
	RepeatGap time.Duration
}

// Built-in protocol revisions.
var (
	// RevisionClassic matches the original 2012 receiver: sentinel checked
	// with single-bit-loss recovery, no trailing delay after zeros.
	RevisionClassic = Revision{
		Name:       "classic",
		Tick:       DefaultTick,
		ShortPulse: TickRange{Min: 6, Max: 10},
		LongPulse:  TickRange{Min: 21, Max: 27},
		BitDelay:   550 * time.Microsecond,
		Space:      150 * time.Microsecond,
		ZeroDelay:  1200 * time.Microsecond,
		Sentinel:   SentinelRecover,
		Repeats:    12,
		RepeatGap:  10 * time.Millisecond,
	}

	// RevisionStrict discards any packet whose first byte is not the
	// sentinel and pads every zero with a fixed LOW gap.
	RevisionStrict = Revision{
		Name:          "strict",
		Tick:          DefaultTick,
		ShortPulse:    TickRange{Min: 6, Max: 10},
		LongPulse:     TickRange{Min: 21, Max: 27},
		BitDelay:      500 * time.Microsecond,
		Space:         150 * time.Microsecond,
		ZeroDelay:     1100 * time.Microsecond,
		PostZeroDelay: 150 * time.Microsecond,
		Sentinel:      SentinelStrict,
		Repeats:       12,
		RepeatGap:     10 * time.Millisecond,
	}

	// RevisionOpen drops the first-byte check entirely so that dim-level
	// state codes whose low byte is not the sentinel are still received.
	RevisionOpen = Revision{
		Name:       "open",
		Tick:       DefaultTick,
		ShortPulse: TickRange{Min: 6, Max: 10},
		LongPulse:  TickRange{Min: 21, Max: 27},
		BitDelay:   600 * time.Microsecond,
		Space:      150 * time.Microsecond,
		ZeroDelay:  1250 * time.Microsecond,
		Sentinel:   SentinelOff,
		Repeats:    12,
		RepeatGap:  10 * time.Millisecond,
	}
)

// Revisions lists the built-in revisions in preference order.
func Revisions() []Revision {
	return []Revision{RevisionClassic, RevisionStrict, RevisionOpen}
}

// RevisionByName returns the built-in revision with the given name.
// The lookup is case-insensitive; an empty name selects RevisionClassic.
func RevisionByName(name string) (Revision, error) {
	if name == "" {
		return RevisionClassic, nil
	}
	for _, r := range Revisions() {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Revision{}, fmt.Errorf("%w: %q", ErrUnknownRevision, name)
}

// markDuration is the HIGH part of a "1" cell.
func (r Revision) markDuration() time.Duration {
	return r.BitDelay - r.Space
}

// zeroLow is the total LOW period the receiver measures for a "0".
func (r Revision) zeroLow() time.Duration {
	return r.ZeroDelay + r.PostZeroDelay
}

// ticks converts a duration to whole ticks.
func (r Revision) ticks(d time.Duration) uint32 {
	if d <= 0 || r.Tick <= 0 {
		return 0
	}
	return uint32(d / r.Tick)
}

// Validate checks that the revision is self-consistent.
//
// Returns:
//   - error: wraps ErrInvalidRevision with every problem found, or nil
func (r Revision) Validate() error {
	var errs []string

	if r.Tick <= 0 {
		errs = append(errs, "tick must be positive")
	}
	if r.ShortPulse.Min == 0 || r.ShortPulse.Min > r.ShortPulse.Max {
		errs = append(errs, "short pulse range is empty")
	}
	if r.LongPulse.Min > r.LongPulse.Max {
		errs = append(errs, "long pulse range is empty")
	}
	if r.LongPulse.Min <= r.ShortPulse.Max {
		errs = append(errs, "long pulse range overlaps short pulse range")
	}
	if r.Repeats <= 0 {
		errs = append(errs, "repeats must be positive")
	}
	if r.RepeatGap < 0 || r.PostZeroDelay < 0 {
		errs = append(errs, "delays must not be negative")
	}

	if len(errs) == 0 {
		if space := r.ticks(r.Space); r.Space <= 0 || space >= r.ShortPulse.Min {
			errs = append(errs, "space must be shorter than the short pulse band")
		}
		if mark := r.ticks(r.markDuration()); !r.ShortPulse.Contains(mark) {
			errs = append(errs, fmt.Sprintf("mark of %d ticks is outside the short pulse band", mark))
		}
		if zero := r.ticks(r.zeroLow()); !r.LongPulse.Contains(zero) {
			errs = append(errs, fmt.Sprintf("zero of %d ticks is outside the long pulse band", zero))
		}
		if gap := r.ticks(r.RepeatGap + r.Space); gap <= r.LongPulse.Max {
			errs = append(errs, "repeat gap must be longer than the long pulse band")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidRevision, r.Name, strings.Join(errs, "; "))
	}
	return nil
}
