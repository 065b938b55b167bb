package repository

import (
	"context"
	"database/sql"
	"errors"

	log "github.com/sirupsen/logrus"
)

// Repository defines the basic CRUD operations for any entity type.
type Repository[T any, ID comparable] interface {
	// Save creates or updates an entity
	Save(ctx context.Context, entity T) (T, error)

	// FindByID retrieves an entity by its ID
	// Returns ErrNotFound if the entity doesn't exist
	FindByID(ctx context.Context, id ID) (T, error)

	// FindAll retrieves all entities
	FindAll(ctx context.Context) ([]T, error)

	// DeleteByID deletes an entity by its ID
	// Returns ErrNotFound if the entity doesn't exist
	DeleteByID(ctx context.Context, id ID) error

	// ExistsByID checks if an entity exists by its ID
	ExistsByID(ctx context.Context, id ID) (bool, error)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.WithField("error", rbErr).Warn("failed to roll back transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.WithField("error", err).Warn("failed to close rows")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
