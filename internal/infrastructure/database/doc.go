// Package database provides the SQLite connection and schema migrations
// for the house directory.
//
// Migrations are pairs of files named YYYYMMDD_HHMMSS_name.up.sql and
// .down.sql, embedded by the migrations package and applied in version
// order, each in its own transaction.
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
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
package database
