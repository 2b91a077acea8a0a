// Package database provides the SQLite connection used by the device
// registry and the node snapshot store.
//
// The connection runs in WAL mode with a single writer and foreign keys on.
// Schema changes are plain SQL files named YYYYMMDD_HHMMSS_name.up.sql (with
// an optional .down.sql twin), applied in version order and tracked in the
// schema_migrations table.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
