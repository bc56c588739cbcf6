package lightwaverf

// Level is the state of the RF data line.
type Level uint8

// Line levels.
const (
	Low  Level = 0
	High Level = 1
)

// String returns "high" or "low".
func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// PulseEvent is one line transition: the time since the previous
// transition in ticks and the level the line has just changed to.
type PulseEvent struct {
	Units uint32
	Level Level
}

// PulseClass is the classifier verdict for one PulseEvent.
type PulseClass uint8

const (
	// PulseNoise is too short to matter and leaves the decoder untouched.
	PulseNoise PulseClass = iota

	// PulseShort is a HIGH mark that just ended: a "1" bit or a marker.
	PulseShort

	// PulseLong is a LOW period that just ended: a "0" bit.
	PulseLong

	// PulseInvalid is a protocol violation; see Violation for the reason.
	PulseInvalid
)

// String returns a short name for the class.
func (c PulseClass) String() string {
	switch c {
	case PulseNoise:
		return "noise"
	case PulseShort:
		return "short"
	case PulseLong:
		return "long"
	default:
		return "invalid"
	}
}

// Violation buckets the reasons a packet is aborted.
type Violation uint8

const (
	// ViolationNone is reported for valid pulses.
	ViolationNone Violation = iota

	// ViolationShortHigh is a short duration ending on a rising edge:
	// too short for the LOW period of a zero.
	ViolationShortHigh

	// ViolationLongLow is a long duration ending on a falling edge:
	// too long for the HIGH mark of a one.
	ViolationLongLow

	// ViolationOutOfBand is a duration outside both bands.
	ViolationOutOfBand

	// ViolationZeroAtByteStart is a zero where a byte-start marker was due.
	ViolationZeroAtByteStart
)

// String returns the diagnostic name of the violation.
func (v Violation) String() string {
	switch v {
	case ViolationNone:
		return "none"
	case ViolationShortHigh:
		return "short_pulse_high"
	case ViolationLongLow:
		return "long_pulse_low"
	case ViolationOutOfBand:
		return "out_of_band"
	case ViolationZeroAtByteStart:
		return "zero_at_byte_start"
	default:
		return "unknown"
	}
}

// Classify maps a pulse to its class using the bands of rev.
// It has no side effects.
func Classify(ev PulseEvent, rev Revision) (PulseClass, Violation) {
	switch {
	case ev.Units < rev.ShortPulse.Min:
		return PulseNoise, ViolationNone
	case rev.ShortPulse.Contains(ev.Units):
		if ev.Level == Low {
			return PulseShort, ViolationNone
		}
		return PulseInvalid, ViolationShortHigh
	case rev.LongPulse.Contains(ev.Units):
		if ev.Level == High {
			return PulseLong, ViolationNone
		}
		return PulseInvalid, ViolationLongLow
	default:
		return PulseInvalid, ViolationOutOfBand
	}
}
