package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/database"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	maxSwitchID = 15

	// Fixed width so last_seen sorts as text.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one row of the activity log.
type Entry struct {
	RemoteID  string    `json:"remote_id"`
	SwitchID  int       `json:"switch_id"`
	Command   string    `json:"command"`
	StateCode uint16    `json:"state_code"`
	Paired    bool      `json:"paired"`
	SeenCount int64     `json:"seen_count"`
	LastSeen  time.Time `json:"last_seen"`
}

// Recorder persists activity entries to SQLite.
type Recorder struct {
	db  *database.DB
	now func() time.Time
}

// NewRecorder creates a recorder on an open, migrated database.
func NewRecorder(db *database.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Record upserts the entry for its remote/switch pair.
//
// An existing row keeps its seen count, incremented by one, and takes the
// entry's command, state code, paired flag and timestamp. A zero LastSeen
// is replaced with the current time; SeenCount on the argument is ignored.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - e: Entry to record
//
// Returns:
//   - error: validation errors or the underlying database error
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.RemoteID == "" {
		return ErrRemoteRequired
	}
	if e.SwitchID < 0 || e.SwitchID > maxSwitchID {
		return fmt.Errorf("%w: %d", ErrInvalidSwitch, e.SwitchID)
	}
	seen := e.LastSeen
	if seen.IsZero() {
		seen = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO remote_activity (remote_id, switch_id, command, state_code, paired, seen_count, last_seen)
		 VALUES (?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT(remote_id, switch_id) DO UPDATE SET
		     command    = excluded.command,
		     state_code = excluded.state_code,
		     paired     = excluded.paired,
		     seen_count = remote_activity.seen_count + 1,
		     last_seen  = excluded.last_seen`,
		e.RemoteID,
		e.SwitchID,
		e.Command,
		int(e.StateCode),
		boolToInt(e.Paired),
		seen.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// List returns the most recently seen entries, newest first.
//
// A limit of zero or less selects the default of 50; limits above 500 are
// capped.
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT remote_id, switch_id, command, state_code, paired, seen_count, last_seen
		 FROM remote_activity
		 ORDER BY last_seen DESC, remote_id, switch_id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e        Entry
			state    int
			paired   int
			lastSeen string
		)
		if err := rows.Scan(&e.RemoteID, &e.SwitchID, &e.Command, &state, &paired, &e.SeenCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.StateCode = uint16(state) //nolint:gosec // Column only ever holds a state code
		e.Paired = paired != 0
		e.LastSeen, err = time.Parse(timestampLayout, lastSeen)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}

	return entries, nil
}

// Clear removes every entry. Erasing the pairing registry clears the log
// too, so stale paired flags are not reported.
func (r *Recorder) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM remote_activity"); err != nil {
		return fmt.Errorf("clearing activity: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
