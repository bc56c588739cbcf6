package lightwaverf

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Edge is a transition of the input line.
type Edge struct {
	// At is a monotonic timestamp of the transition.
	At time.Duration

	// Level is the level the line changed to.
	Level Level
}

// EdgeSource delivers input line transitions.
//
// The handler is called once per edge, in order, from a single goroutine.
// It returns quickly and never blocks.
type EdgeSource interface {
	Watch(handler func(Edge)) error
}

// Line drives the output line. Emit holds each pulse for its duration and
// returns once the whole train has been sent.
type Line interface {
	Emit(train []Pulse) error
}

// Logger defines the logging interface used by the transceiver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Transceiver.
type Options struct {
	// Revision selects protocol timings. Zero value means RevisionClassic.
	Revision Revision

	// Input is the receiver line. Required.
	Input EdgeSource

	// Output is the transmitter line. Optional; Send fails without it.
	Output Line

	// Logger is optional.
	Logger Logger
}

// Transceiver is the process-wide LightwaveRF context: it owns the decoder,
// the encoder, the edge timer and the output line.
//
// Thread Safety:
//   - Edge handling runs in the EdgeSource goroutine.
//   - HasMessage, WaitForMessage and TakeMessage must be called from a
//     single consumer goroutine.
//   - Send may be called from any goroutine; sends are serialised.
type Transceiver struct {
	rev     Revision
	decoder *Decoder
	encoder *Encoder
	timer   edgeTimer
	out     Line
	logger  Logger

	sendMu sync.Mutex
	sent   atomic.Uint64
	closed atomic.Bool
}

// Setup validates the options, attaches to the input line and returns a
// ready transceiver.
//
// Parameters:
//   - opts: revision, lines and logger
//
// Returns:
//   - *Transceiver: receiving as soon as Setup returns
//   - error: if the revision is invalid or the input cannot be watched
func Setup(opts Options) (*Transceiver, error) {
	rev := opts.Revision
	if rev.Name == "" {
		rev = RevisionClassic
	}
	if err := rev.Validate(); err != nil {
		return nil, err
	}
	if opts.Input == nil {
		return nil, ErrNoInput
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	t := &Transceiver{
		rev:     rev,
		decoder: NewDecoder(rev),
		encoder: NewEncoder(rev),
		timer:   edgeTimer{tick: rev.Tick},
		out:     opts.Output,
		logger:  logger,
	}

	if err := opts.Input.Watch(t.handleEdge); err != nil {
		return nil, fmt.Errorf("watching input line: %w", err)
	}

	logger.Info("lightwaverf transceiver ready",
		"revision", rev.Name,
		"sentinel", rev.Sentinel.String(),
		"transmit", opts.Output != nil)
	return t, nil
}

func (t *Transceiver) handleEdge(e Edge) {
	if t.closed.Load() {
		return
	}
	if ev, ok := t.timer.observe(e); ok {
		t.decoder.HandlePulse(ev)
	}
}

// HasMessage reports whether a decoded message is waiting.
func (t *Transceiver) HasMessage() bool {
	return t.decoder.HasMessage()
}

// TakeMessage moves the waiting message into dst. See Decoder.TakeMessage.
func (t *Transceiver) TakeMessage(dst *Message) bool {
	return t.decoder.TakeMessage(dst)
}

// WaitForMessage blocks until a message is waiting or ctx is done.
func (t *Transceiver) WaitForMessage(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.decoder.WaitForMessage(ctx)
}

// Send transmits msg Repeats times. Edge processing is suspended for the
// whole burst and resumed on every exit path. A send cannot be cancelled
// once started.
func (t *Transceiver) Send(msg Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.out == nil {
		return ErrNoOutput
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	resume := t.decoder.Suspend()
	defer resume()

	start := time.Now()
	if err := t.out.Emit(t.encoder.Transmission(msg)); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	t.sent.Inc()

	t.logger.Debug("lightwaverf message sent",
		"message", msg.String(),
		"repeats", t.rev.Repeats,
		"duration", time.Since(start))
	return nil
}

// Diagnostics returns the decoder counters.
func (t *Transceiver) Diagnostics() Diagnostics {
	return t.decoder.Diagnostics()
}

// Sent returns the number of completed transmissions.
func (t *Transceiver) Sent() uint64 {
	return t.sent.Load()
}

// Revision returns the active protocol revision.
func (t *Transceiver) Revision() Revision {
	return t.rev
}

// Close stops edge processing. Further sends and waits fail with ErrClosed.
// The lines themselves belong to the caller.
func (t *Transceiver) Close() error {
	t.closed.Store(true)
	return nil
}

// edgeTimer converts edge timestamps into tick counts. It is only used
// from the edge goroutine.
type edgeTimer struct {
	tick   time.Duration
	last   time.Duration
	primed bool
}

// observe returns the pulse that ended at e. The first edge only sets the
// reference point.
func (et *edgeTimer) observe(e Edge) (PulseEvent, bool) {
	if !et.primed {
		et.primed = true
		et.last = e.At
		return PulseEvent{}, false
	}

	elapsed := e.At - et.last
	et.last = e.At
	if elapsed < 0 {
		elapsed = 0
	}

	units := elapsed / et.tick
	if units > math.MaxUint32 {
		units = math.MaxUint32
	}
	return PulseEvent{Units: uint32(units), Level: e.Level}, true
}
