package radio

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// loopbackIdle is the silence inserted on the virtual clock before each
// emitted train.
const loopbackIdle = 20 * time.Millisecond

// Loopback is a software radio: every emitted pulse train is delivered as
// edges to every watcher, timestamped on a virtual clock. It lets two
// transceivers talk without hardware.
type Loopback struct {
	mu       sync.Mutex
	now      time.Duration
	watchers []func(lightwaverf.Edge)
	trains   int
	closed   bool
}

// NewLoopback creates an idle loopback line.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Name implements Device.
func (l *Loopback) Name() string {
	return DriverLoopback
}

// CanTransmit implements Device.
func (l *Loopback) CanTransmit() bool {
	return true
}

// Watch implements lightwaverf.EdgeSource. Any number of watchers may be
// registered.
func (l *Loopback) Watch(handler func(lightwaverf.Edge)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.watchers = append(l.watchers, handler)
	return nil
}

// Emit implements lightwaverf.Line. Edges are delivered synchronously, in
// order, before Emit returns. Handlers must not call Emit.
func (l *Loopback) Emit(train []lightwaverf.Pulse) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if len(train) == 0 {
		return nil
	}

	// The line rests LOW between trains, so the last pulse ends without an
	// edge.
	l.now += loopbackIdle
	l.deliver(lightwaverf.Edge{At: l.now, Level: train[0].Level})
	for i, p := range train {
		l.now += p.Duration
		if i+1 < len(train) {
			l.deliver(lightwaverf.Edge{At: l.now, Level: train[i+1].Level})
		}
	}
	l.trains++
	return nil
}

func (l *Loopback) deliver(e lightwaverf.Edge) {
	for _, w := range l.watchers {
		w(e)
	}
}

// Trains returns the number of trains emitted so far.
func (l *Loopback) Trains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trains
}

// Close implements Device.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.watchers = nil
	return nil
}
