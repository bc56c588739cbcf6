package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// Registry layout constants.
const (
	// Capacity is the maximum number of pairings.
	Capacity = 6

	// headerSize is the count byte at offset 0.
	headerSize = 1

	// slotSize is identity (6) + switch id (1) + paired flag (1).
	slotSize = lightwaverf.RemoteIDLen + 2

	// RegionSize is the persisted region: header plus every slot,
	// independent of the current count.
	RegionSize = headerSize + Capacity*slotSize

	// DefaultLearnTimeout is how long Learn waits when no timeout is given.
	DefaultLearnTimeout = 30 * time.Second
)

// Entry is one pairing slot.
type Entry struct {
	Remote   lightwaverf.RemoteID `json:"remote_id"`
	SwitchID byte                 `json:"switch_id"`
	Paired   bool                 `json:"paired"`
}

// Matches reports whether msg comes from this paired remote and switch.
func (e Entry) Matches(msg lightwaverf.Message) bool {
	return e.Paired && e.SwitchID == msg.SwitchID() && e.Remote == msg.Remote()
}

func (e Entry) encode() []byte {
	slot := make([]byte, slotSize)
	copy(slot, e.Remote[:])
	slot[lightwaverf.RemoteIDLen] = e.SwitchID
	if e.Paired {
		slot[lightwaverf.RemoteIDLen+1] = 1
	}
	return slot
}

func decodeEntry(slot []byte) Entry {
	var e Entry
	copy(e.Remote[:], slot[:lightwaverf.RemoteIDLen])
	e.SwitchID = slot[lightwaverf.RemoteIDLen]
	e.Paired = slot[lightwaverf.RemoteIDLen+1] != 0
	return e
}

func slotOffset(i int) int {
	return headerSize + i*slotSize
}

// LearnOutcome is the result of a Learn call.
type LearnOutcome int

const (
	// LearnAdded means a new entry was appended and persisted.
	LearnAdded LearnOutcome = iota

	// LearnFull means a message arrived but the registry had no free slot.
	// The message was consumed.
	LearnFull

	// LearnTimeout means no message arrived in time.
	LearnTimeout
)

// String returns the outcome name used in responses.
func (o LearnOutcome) String() string {
	switch o {
	case LearnAdded:
		return "added"
	case LearnFull:
		return "full"
	case LearnTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("LearnOutcome(%d)", int(o))
	}
}

// MessageSource is the consumer side of a decoder. *lightwaverf.Transceiver
// satisfies it.
type MessageSource interface {
	WaitForMessage(ctx context.Context) error
	TakeMessage(dst *lightwaverf.Message) bool
}

var _ MessageSource = (*lightwaverf.Transceiver)(nil)

// Logger defines the logging interface used by the registry.
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

// Registry is the bounded set of paired remotes, mirrored in a Store.
//
// Every mutation is written through to the store before it is visible in
// memory, so the in-memory count always matches the persisted one.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	store Store

	mu        sync.RWMutex
	loaded    bool
	count     int
	entries   [Capacity]Entry
	corrupted bool

	loggerMu sync.RWMutex
	logger   Logger
}

// NewRegistry creates an empty registry backed by store. Call Load before
// use.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for registry operations.
func (r *Registry) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	defer r.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

func (r *Registry) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// Load reads the count and entries from the store.
//
// A persisted count above Capacity is clamped and the registry is flagged
// as corrupted (see Corrupted). Slots beyond the count are never read into
// the registry.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Registry) loadLocked(ctx context.Context) error {
	region, err := r.store.ReadRegion(ctx, 0, RegionSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreRead, err)
	}

	count := int(region[0])
	r.corrupted = false
	if count > Capacity {
		r.log().Warn("pairing store count exceeds capacity, clamping",
			"stored_count", count,
			"capacity", Capacity)
		count = Capacity
		r.corrupted = true
	}

	r.entries = [Capacity]Entry{}
	for i := 0; i < count; i++ {
		off := slotOffset(i)
		r.entries[i] = decodeEntry(region[off : off+slotSize])
	}
	r.count = count
	r.loaded = true

	r.log().Debug("pairings loaded", "count", count)
	return nil
}

// Corrupted reports whether the last Load found a count above Capacity.
func (r *Registry) Corrupted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.corrupted
}

// Count returns the number of paired entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Full reports whether no slot is free.
func (r *Registry) Full() bool {
	return r.Count() >= Capacity
}

// Entries returns a copy of the active entries in slot order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, r.count)
	copy(out, r.entries[:r.count])
	return out
}

// Lookup returns the first active entry matching msg's identity and switch
// id. Lower slots win.
func (r *Registry) Lookup(msg lightwaverf.Message) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.count; i++ {
		if r.entries[i].Matches(msg) {
			return r.entries[i], true
		}
	}
	return Entry{}, false
}

// IsPaired reports whether msg comes from a paired remote and switch.
func (r *Registry) IsPaired(msg lightwaverf.Message) bool {
	_, ok := r.Lookup(msg)
	return ok
}

// Add appends a paired entry and persists it.
//
// Parameters:
//   - ctx: Context for the store write
//   - remote: transmitter identity
//   - switchID: raw switch byte as received
//
// Returns:
//   - Entry: the stored entry
//   - bool: false if the registry is full; nothing is written
//   - error: if the store write fails; the registry is unchanged
func (r *Registry) Add(ctx context.Context, remote lightwaverf.RemoteID, switchID byte) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return Entry{}, false, ErrNotLoaded
	}
	if r.count >= Capacity {
		return Entry{}, false, nil
	}

	entry := Entry{Remote: remote, SwitchID: switchID, Paired: true}
	idx := r.count

	// Slot first, then count: a failure between the two leaves the old
	// count pointing at intact slots.
	if err := r.store.WriteRegion(ctx, slotOffset(idx), entry.encode()); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if err := r.store.WriteRegion(ctx, 0, []byte{byte(idx + 1)}); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	r.entries[idx] = entry
	r.count = idx + 1

	r.log().Info("remote paired",
		"remote_id", remote.String(),
		"switch_id", switchID,
		"slot", idx,
		"count", r.count)
	return entry, true, nil
}

// Learn waits up to timeout for the next message from src and pairs its
// remote and switch.
//
// A message that arrives while the registry is full is still consumed.
// Cancelling ctx returns ctx.Err(); the timeout itself is an outcome.
//
// Parameters:
//   - ctx: Context for cancellation
//   - src: where the message comes from
//   - timeout: how long to wait; zero or negative means DefaultLearnTimeout
//
// Returns:
//   - LearnOutcome: added, full or timeout
//   - Entry: the new entry when the outcome is LearnAdded
//   - error: store failures and cancellation; the outcome is meaningless
//     when error is non-nil
func (r *Registry) Learn(ctx context.Context, src MessageSource, timeout time.Duration) (LearnOutcome, Entry, error) {
	if timeout <= 0 {
		timeout = DefaultLearnTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.log().Info("waiting for a message to pair with", "timeout", timeout)

	var msg lightwaverf.Message
	for {
		if err := src.WaitForMessage(waitCtx); err != nil {
			if ctx.Err() != nil {
				return LearnTimeout, Entry{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				r.log().Info("no message to pair with", "timeout", timeout)
				return LearnTimeout, Entry{}, nil
			}
			return LearnTimeout, Entry{}, fmt.Errorf("waiting for message: %w", err)
		}
		if src.TakeMessage(&msg) {
			break
		}
	}

	r.log().Debug("message received for pairing",
		"message", msg.String(),
		"remote_id", msg.Remote().String())

	entry, added, err := r.Add(ctx, msg.Remote(), msg.SwitchID())
	if err != nil {
		return LearnFull, Entry{}, err
	}
	if !added {
		r.log().Warn("pairing registry full, message discarded",
			"remote_id", msg.Remote().String(),
			"capacity", Capacity)
		return LearnFull, Entry{}, nil
	}
	return LearnAdded, entry, nil
}

// EraseAll zeroes the whole persisted region and reloads, leaving the
// registry empty. There is no partial erase.
func (r *Registry) EraseAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.count
	if err := r.store.WriteRegion(ctx, 0, make([]byte, RegionSize)); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if err := r.loadLocked(ctx); err != nil {
		return err
	}

	r.log().Info("all pairings erased", "erased", previous)
	return nil
}
