// Package database provides the SQLite store used by the Tuya BLE bridge.
//
// The store holds the host device registry (devices, entities, last
// entity states), state history and device credentials. It is opened
// once at startup:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are compiled in by the migrations package, which sets
// MigrationsFS at init. Files follow YYYYMMDD_HHMMSS_name.up.sql with an
// optional .down.sql, and are additive: new columns must be nullable or
// carry a default.
package database
