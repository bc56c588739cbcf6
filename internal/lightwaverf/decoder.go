package lightwaverf

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// bitsPerByte is the number of data bits following each byte-start marker.
const bitsPerByte = 8

// recoveredSentinel is what byte 0 reads as when the packet start marker is
// lost: the byte-start marker opens the packet, the sentinel's leading 1
// opens the byte, and byte 1's start marker becomes the eighth bit.
const recoveredSentinel = byte((uint16(Sentinel)<<1 | 1) & 0xFF)

// Diagnostics is a snapshot of the decoder counters.
// The first four fields bucket timing violations by the check that failed.
type Diagnostics struct {
	ShortPulseHigh    uint64 `json:"short_pulse_high"`
	LongPulseLow      uint64 `json:"long_pulse_low"`
	OutOfBand         uint64 `json:"out_of_band"`
	ZeroAtByteStart   uint64 `json:"zero_at_byte_start"`
	SentinelMismatch  uint64 `json:"sentinel_mismatch"`
	SentinelRecovered uint64 `json:"sentinel_recovered"`
	Messages          uint64 `json:"messages"`
}

// Violations returns the total of the four timing violation counters.
func (d Diagnostics) Violations() uint64 {
	return d.ShortPulseHigh + d.LongPulseLow + d.OutOfBand + d.ZeroAtByteStart
}

// Decoder reassembles LightwaveRF messages from line transitions.
//
// It is a single-producer/single-consumer structure:
//   - HandlePulse is the producer. It is called from the edge context, one
//     event at a time, never blocks and allocates nothing.
//   - HasMessage, WaitForMessage and TakeMessage form the consumer side and
//     must be used from a single goroutine.
//
// The ready flag is the only synchronisation point. Once a message is
// complete the producer stores it, sets the flag and ignores every further
// edge until the consumer takes the message and clears the flag. The buffer
// is therefore never written while the consumer may be reading it.
type Decoder struct {
	rev Revision

	// Producer-owned state. Only HandlePulse touches these fields.
	packetStarted bool
	byteStarted   bool
	bitCount      int
	accum         byte
	count         int

	// buf is written by the producer while ready is false and read by the
	// consumer while ready is true.
	buf   Message
	ready atomic.Bool
	wake  chan struct{}

	suspended atomic.Int32
	resync    atomic.Bool

	shortHigh         atomic.Uint64
	longLow           atomic.Uint64
	outOfBand         atomic.Uint64
	zeroAtByteStart   atomic.Uint64
	sentinelMismatch  atomic.Uint64
	sentinelRecovered atomic.Uint64
	messages          atomic.Uint64
}

// NewDecoder creates an idle decoder for the given revision.
func NewDecoder(rev Revision) *Decoder {
	return &Decoder{
		rev:  rev,
		wake: make(chan struct{}, 1),
	}
}

// Revision returns the protocol revision the decoder was built for.
func (d *Decoder) Revision() Revision {
	return d.rev
}

// HandlePulse feeds one line transition into the state machine.
//
// Events are dropped while a message is waiting to be taken and while the
// decoder is suspended for a transmission.
func (d *Decoder) HandlePulse(ev PulseEvent) {
	if d.ready.Load() || d.suspended.Load() > 0 {
		return
	}
	if d.resync.Swap(false) {
		d.reset()
	}

	class, violation := Classify(ev, d.rev)
	switch class {
	case PulseNoise:
	case PulseShort:
		d.handleShort()
	case PulseLong:
		d.handleLong()
	default:
		d.abort(violation)
	}
}

func (d *Decoder) handleShort() {
	switch {
	case !d.packetStarted:
		d.packetStarted = true
		d.byteStarted = false
		d.count = 0
	case !d.byteStarted:
		d.startByte()
	default:
		d.shiftIn(1)
	}
}

func (d *Decoder) handleLong() {
	if !d.packetStarted || !d.byteStarted {
		d.abort(ViolationZeroAtByteStart)
		return
	}
	d.shiftIn(0)
}

func (d *Decoder) startByte() {
	d.byteStarted = true
	d.bitCount = 0
	d.accum = 0
}

func (d *Decoder) shiftIn(bit byte) {
	d.accum = d.accum<<1 | bit
	d.bitCount++
	if d.bitCount == bitsPerByte {
		d.completeByte()
	}
}

// completeByte appends the accumulated byte, applying the first-byte check.
func (d *Decoder) completeByte() {
	b := d.accum
	d.byteStarted = false

	if d.count == 0 && b != Sentinel && d.rev.Sentinel != SentinelOff {
		if d.rev.Sentinel == SentinelRecover && b == recoveredSentinel {
			d.sentinelRecovered.Inc()
			d.buf[0] = Sentinel
			d.count = 1
			// Byte 1's start marker was consumed as the eighth bit.
			d.startByte()
			return
		}
		d.sentinelMismatch.Inc()
		d.reset()
		return
	}

	d.buf[d.count] = b
	d.count++
	if d.count == MessageLen {
		d.publish()
	}
}

// publish hands the buffer to the consumer.
func (d *Decoder) publish() {
	d.packetStarted = false
	d.byteStarted = false
	d.count = 0
	d.messages.Inc()

	d.ready.Store(true)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Decoder) abort(v Violation) {
	switch v {
	case ViolationShortHigh:
		d.shortHigh.Inc()
	case ViolationLongLow:
		d.longLow.Inc()
	case ViolationOutOfBand:
		d.outOfBand.Inc()
	case ViolationZeroAtByteStart:
		d.zeroAtByteStart.Inc()
	}
	d.reset()
}

func (d *Decoder) reset() {
	d.packetStarted = false
	d.byteStarted = false
	d.bitCount = 0
	d.accum = 0
	d.count = 0
}

// HasMessage reports whether a complete message is waiting.
func (d *Decoder) HasMessage() bool {
	return d.ready.Load()
}

// TakeMessage copies the waiting message into dst and frees the buffer
// for the next packet. It returns false, leaving dst untouched, when no
// message is waiting.
func (d *Decoder) TakeMessage(dst *Message) bool {
	if !d.ready.Load() {
		return false
	}
	*dst = d.buf
	d.buf = Message{}
	d.ready.Store(false)
	return true
}

// WaitForMessage blocks until a message is waiting or ctx is done.
// The decoder imposes no timeout of its own.
//
// Returns:
//   - error: nil when a message is ready, ctx.Err() otherwise
func (d *Decoder) WaitForMessage(ctx context.Context) error {
	for {
		if d.ready.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// Suspend stops edge processing until the returned function is called.
// Suspensions nest. The resume function is safe to call more than once;
// only the first call has an effect. Any packet in progress is discarded
// when edges are accepted again.
//
// Example:
//
//	resume := decoder.Suspend()
//	defer resume()
func (d *Decoder) Suspend() (resume func()) {
	d.suspended.Inc()
	d.resync.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.suspended.Dec()
		})
	}
}

// Diagnostics returns a snapshot of the decoder counters.
func (d *Decoder) Diagnostics() Diagnostics {
	return Diagnostics{
		ShortPulseHigh:    d.shortHigh.Load(),
		LongPulseLow:      d.longLow.Load(),
		OutOfBand:         d.outOfBand.Load(),
		ZeroAtByteStart:   d.zeroAtByteStart.Load(),
		SentinelMismatch:  d.sentinelMismatch.Load(),
		SentinelRecovered: d.sentinelRecovered.Load(),
		Messages:          d.messages.Load(),
	}
}
