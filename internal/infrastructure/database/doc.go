// Package database provides SQLite connectivity for the LightwaveRF bridge.
//
// The database holds the persisted pairing region and the remote activity
// log. It is small and written rarely, so a single connection is used.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with an optional
// matching .down.sql, and are embedded by the migrations package.
package database
