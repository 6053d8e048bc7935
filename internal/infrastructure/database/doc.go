// Package database provides SQLite connectivity for the relay.
//
// This package manages:
//   - The connection, with WAL mode, a busy timeout and a single writer
//   - Immediate-mode transactions (BEGIN IMMEDIATE) via WithTx
//   - Schema migrations embedded in the binary
//   - The fixed-width timestamp format shared by all relay tables
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations live in the top-level migrations package as
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs.
package database
