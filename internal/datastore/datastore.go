package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jbweber/homelab/hutch/internal/migrations"
	_ "modernc.org/sqlite"
)

// connectionPragmas are applied to every pooled connection through the DSN.
var connectionPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// Datastore owns the SQLite handle shared by all repositories.
type Datastore struct {
	DB *sql.DB
}

// New opens the SQLite database at dsn and runs migrations.
func New(dsn string) (*Datastore, error) {
	// writers take the lock at BEGIN so a read-then-write transaction never fails to upgrade
	db, err := sql.Open("sqlite", WithPragmas(dsn, connectionPragmas...)+"&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	// a private in-memory database lives only as long as its connection
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Datastore{DB: db}, nil
}

// Ping verifies the database is reachable.
func (ds *Datastore) Ping(ctx context.Context) error {
	return ds.DB.PingContext(ctx)
}

// Close releases the database handle.
func (ds *Datastore) Close() error {
	return ds.DB.Close()
}

// WithPragmas appends _pragma query parameters understood by modernc.org/sqlite.
func WithPragmas(dsn string, pragmas ...string) string {
	if len(pragmas) == 0 {
		return dsn
	}

	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + strings.Join(params, "&")
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
