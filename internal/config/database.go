package config

import (
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	maxOpenConns    = 8
	maxIdleConns    = 4
	connMaxLifetime = 5 * time.Minute
)

// tuneDatabase sizes the connection pool and moves the database file to WAL,
// so the API keeps reading while the scheduler writes.
func tuneDatabase(db *sql.DB) error {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}
	if mode != "wal" {
		log.WithField("journal_mode", mode).Warn("database is not in WAL mode")
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA optimize",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}
