package lightwaverf

import "time"

// Pulse is a period during which the output line is held at one level.
type Pulse struct {
	Level    Level
	Duration time.Duration
}

// pulsesPerFrame is the upper bound of pulses in one repeat: start and end
// markers plus, per byte, a start marker and eight bits, two pulses each.
const pulsesPerFrame = 2 * (2 + MessageLen*(1+bitsPerByte))

// Encoder turns messages into pulse trains for a Line.
type Encoder struct {
	rev Revision
}

// NewEncoder creates an encoder for the given revision.
func NewEncoder(rev Revision) *Encoder {
	return &Encoder{rev: rev}
}

// Frame returns one repeat of msg: a start marker, each byte as a start
// marker followed by its bits MSB first, an end marker and the inter-repeat
// gap. The train starts HIGH and ends LOW.
func (e *Encoder) Frame(msg Message) []Pulse {
	return e.appendFrame(make([]Pulse, 0, pulsesPerFrame), msg)
}

// Transmission returns the full burst: Frame repeated Repeats times.
func (e *Encoder) Transmission(msg Message) []Pulse {
	train := make([]Pulse, 0, pulsesPerFrame*e.rev.Repeats)
	for i := 0; i < e.rev.Repeats; i++ {
		train = e.appendFrame(train, msg)
	}
	return train
}

// Duration returns how long the transmission of one message takes.
func (e *Encoder) Duration(msg Message) time.Duration {
	var total time.Duration
	for _, p := range e.Frame(msg) {
		total += p.Duration
	}
	return total * time.Duration(e.rev.Repeats)
}

func (e *Encoder) appendFrame(train []Pulse, msg Message) []Pulse {
	train = e.appendOne(train)
	for _, b := range msg {
		train = e.appendOne(train)
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				train = e.appendOne(train)
			} else {
				train = e.appendZero(train)
			}
		}
	}
	train = e.appendOne(train)
	train[len(train)-1].Duration += e.rev.RepeatGap
	return train
}

// appendOne emits a HIGH mark followed by a short LOW space.
func (e *Encoder) appendOne(train []Pulse) []Pulse {
	return append(train,
		Pulse{Level: High, Duration: e.rev.markDuration()},
		Pulse{Level: Low, Duration: e.rev.Space},
	)
}

// appendZero emits a short HIGH space followed by the long LOW period.
func (e *Encoder) appendZero(train []Pulse) []Pulse {
	return append(train,
		Pulse{Level: High, Duration: e.rev.Space},
		Pulse{Level: Low, Duration: e.rev.zeroLow()},
	)
}
