package lwrf

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
)

// handoff passes received frames to a pending pair request.
//
// The receive loop stays the only consumer of the transceiver. While a learn
// is active it offers each fresh frame here instead of publishing it; the
// learning goroutine reads from the other side through the
// pairing.MessageSource methods.
type handoff struct {
	// mu makes the active check and the send in offer one step against
	// the release and drain in end.
	mu     sync.Mutex
	active bool
	ch     chan lightwaverf.Message

	// Owned by the learning goroutine.
	held    lightwaverf.Message
	hasHeld bool
}

var _ pairing.MessageSource = (*handoff)(nil)

func newHandoff() *handoff {
	return &handoff{ch: make(chan lightwaverf.Message, 1)}
}

// begin claims the handoff for one learn. It returns false if another
// learn holds it. A new learn never starts with a frame already waiting.
func (h *handoff) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active {
		return false
	}
	h.active = true
	h.drain()
	h.hasHeld = false
	return true
}

// end releases the handoff and drops any frame offered too late.
func (h *handoff) end() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	h.drain()
	h.hasHeld = false
}

func (h *handoff) drain() {
	select {
	case <-h.ch:
	default:
	}
}

// offer hands msg to the learner. It returns false when no learn is
// active or a frame is already waiting.
func (h *handoff) offer(msg lightwaverf.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return false
	}
	select {
	case h.ch <- msg:
		return true
	default:
		return false
	}
}

// WaitForMessage blocks until a frame is offered or ctx is done.
func (h *handoff) WaitForMessage(ctx context.Context) error {
	if h.hasHeld {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg := <-h.ch:
		h.held = msg
		h.hasHeld = true
		return nil
	}
}

// TakeMessage moves the offered frame into dst.
func (h *handoff) TakeMessage(dst *lightwaverf.Message) bool {
	if !h.hasHeld {
		return false
	}
	*dst = h.held
	h.hasHeld = false
	return true
}
