package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Migration represents a schema migration. Up and Down run inside the same
// transaction that records the version.
type Migration struct {
	Version int64
	Name    string
	Up      func(*sql.Tx) error
	Down    func(*sql.Tx) error
}

// Migrator handles database migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: []Migration{},
	}
}

// AddMigration adds a migration to the migrator
func (m *Migrator) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

// RunMigrations runs all pending migrations
func (m *Migrator) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}
		if err := m.runMigration(migration); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		log.WithFields(log.Fields{
			"version": migration.Version,
			"name":    migration.Name,
		}).Info("applied migration")
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback() error {
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if currentVersion == 0 {
		return nil
	}

	for _, migration := range m.migrations {
		if migration.Version != currentVersion {
			continue
		}
		if migration.Down == nil {
			return fmt.Errorf("migration %d (%s) has no down step", migration.Version, migration.Name)
		}
		return m.inTx(func(tx *sql.Tx) error {
			if err := migration.Down(tx); err != nil {
				return err
			}
			_, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", migration.Version)
			return err
		})
	}

	return fmt.Errorf("applied migration %d is not registered", currentVersion)
}

func (m *Migrator) createMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *Migrator) getCurrentVersion() (int64, error) {
	var version int64
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (m *Migrator) runMigration(migration Migration) error {
	return m.inTx(func(tx *sql.Tx) error {
		if err := migration.Up(tx); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", migration.Version, migration.Name)
		return err
	})
}

func (m *Migrator) inTx(fn func(*sql.Tx) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			log.WithField("error", rollbackErr).Warn("failed to roll back migration transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCurrentVersion returns the current migration version
func (m *Migrator) GetCurrentVersion() (int64, error) {
	return m.getCurrentVersion()
}

// GetMigrations returns all registered migrations
func (m *Migrator) GetMigrations() []Migration {
	return m.migrations
}

// Run registers every known migration on db and applies the pending ones.
func Run(db *sql.DB) error {
	migrator := NewMigrator(db)
	for _, migration := range GetMigrations() {
		migrator.AddMigration(migration)
	}
	return migrator.RunMigrations()
}

// Rollback registers every known migration on db and reverts the latest applied one.
func Rollback(db *sql.DB) error {
	migrator := NewMigrator(db)
	for _, migration := range GetMigrations() {
		migrator.AddMigration(migration)
	}
	return migrator.Rollback()
}

// GetMigrations returns the full ordered migration set.
func GetMigrations() []Migration {
	all := GetInitialMigrations()
	return append(all, GetPerformanceMigrations()...)
}
