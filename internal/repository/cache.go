package repository

import (
	"context"
	"database/sql"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// statementCache lazily prepares the reservation read queries, once per query text.
type statementCache struct {
	db *sql.DB

	mu       sync.Mutex
	prepared map[string]*sql.Stmt
}

func newStatementCache(db *sql.DB) *statementCache {
	return &statementCache{db: db, prepared: map[string]*sql.Stmt{}}
}

// get returns the prepared form of query, preparing it on first use.
// A failed prepare is not cached.
func (c *statementCache) get(ctx context.Context, query string) (*sql.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stmt, ok := c.prepared[query]; ok {
		return stmt, nil
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.prepared[query] = stmt
	return stmt, nil
}

// close releases every statement and empties the cache. The cache stays usable.
func (c *statementCache) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result *multierror.Error
	for query, stmt := range c.prepared {
		if err := stmt.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		delete(c.prepared, query)
	}
	return result.ErrorOrNil()
}

func (c *statementCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prepared)
}
