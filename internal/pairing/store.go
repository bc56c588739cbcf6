package pairing

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/database"
)

// Store is a byte-addressed persistent region, the equivalent of a small
// EEPROM. Addresses that were never written read as zero.
type Store interface {
	// ReadRegion returns n bytes starting at offset.
	ReadRegion(ctx context.Context, offset, n int) ([]byte, error)

	// WriteRegion writes data starting at offset. The write is durable
	// when it returns nil.
	WriteRegion(ctx context.Context, offset int, data []byte) error
}

func checkBounds(size, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > size {
		return fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, offset, n, size)
	}
	return nil
}

// MemoryStore is a volatile Store used in tests and when no database is
// configured.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStore creates a zeroed store of the given size.
func NewMemoryStore(size int) *MemoryStore {
	return &MemoryStore{data: make([]byte, size)}
}

// ReadRegion implements Store.
func (m *MemoryStore) ReadRegion(_ context.Context, offset, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(len(m.data), offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[offset:offset+n])
	return out, nil
}

// WriteRegion implements Store.
func (m *MemoryStore) WriteRegion(_ context.Context, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(len(m.data), offset, len(data)); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

// SQLiteStore keeps the region in the pairing_store table, one row per
// address. The table is created by the embedded migrations.
type SQLiteStore struct {
	db   *database.DB
	size int
}

// NewSQLiteStore creates a store of the given size on db.
// db must have been migrated.
func NewSQLiteStore(db *database.DB, size int) *SQLiteStore {
	return &SQLiteStore{db: db, size: size}
}

// ReadRegion implements Store.
func (s *SQLiteStore) ReadRegion(ctx context.Context, offset, n int) ([]byte, error) {
	if err := checkBounds(s.size, offset, n); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT addr, value FROM pairing_store WHERE addr >= ? AND addr < ?",
		offset, offset+n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pairing store: %w", err)
	}
	defer rows.Close()

	out := make([]byte, n)
	for rows.Next() {
		var addr, value int
		if err := rows.Scan(&addr, &value); err != nil {
			return nil, fmt.Errorf("scanning pairing store row: %w", err)
		}
		out[addr-offset] = byte(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pairing store: %w", err)
	}
	return out, nil
}

// WriteRegion implements Store. All bytes are written in one transaction.
func (s *SQLiteStore) WriteRegion(ctx context.Context, offset int, data []byte) error {
	if err := checkBounds(s.size, offset, len(data)); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO pairing_store (addr, value) VALUES (?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing pairing store write: %w", err)
	}
	defer stmt.Close()

	for i, b := range data {
		if _, err := stmt.ExecContext(ctx, offset+i, int(b)); err != nil {
			return fmt.Errorf("writing pairing store addr %d: %w", offset+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing pairing store write: %w", err)
	}
	return nil
}
