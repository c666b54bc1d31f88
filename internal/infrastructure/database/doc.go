// Package database provides the SQLite store behind the counter relay.
//
// It opens the database with foreign keys enforced (and WAL mode when
// configured), limits the pool to one connection, and applies the schema
// migrations registered by the migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are pairs of YYYYMMDD_HHMMSS_name.up.sql and .down.sql files.
// They are additive: new columns are NULLable or carry a DEFAULT.
package database
