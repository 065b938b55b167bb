package repository

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Common repository errors that can be checked with errors.Is()
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when attempting to create an entity that already exists
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInUse is returned when deleting an entity still referenced by others
	ErrInUse = errors.New("entity in use")
)

func isNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, "UNIQUE", sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, "FOREIGN KEY", sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY)
}

// isConstraint matches extended result codes, falling back to the message when
// only the primary SQLITE_CONSTRAINT code is reported.
func isConstraint(err error, kind string, codes ...int) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), kind)
}
