// Package database provides the SQLite connection that backs the project
// store and device registry.
//
// Open configures WAL mode, a busy timeout and a single-connection pool.
// Schema changes live in the top-level migrations package as
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs and are applied by Migrate.
// Migrations are additive: new columns are nullable or defaulted.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
