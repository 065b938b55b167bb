package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
)

// ScheduleRepository is the time-interval store. It persists reservations but does
// not check for overlaps; callers go through the scheduler for that.
type ScheduleRepository interface {
	Repository[domain.Reservation, int64]
	FindByHost(ctx context.Context, host string) ([]domain.Reservation, error)
	FindByCloud(ctx context.Context, cloud string) ([]domain.Reservation, error)
	FindByHostAndIndex(ctx context.Context, host string, index int64) (domain.Reservation, error)
	DeleteByHostAndIndex(ctx context.Context, host string, index int64) error
	Close() error
}

type scheduleRepositoryImpl struct {
	db    *sql.DB
	stmts *statementCache
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepositoryImpl{
		db:    db,
		stmts: newStatementCache(db),
	}
}

const selectSchedule = `
	SELECT s.id, s.idx, h.name, c.name, s.start_at, s.end_at
	FROM schedules s
	JOIN hosts h ON h.id = s.host_id
	JOIN clouds c ON c.id = s.cloud_id`

// Save inserts a reservation with a fresh per-host index, or updates an existing one
// in place (same identity, new cloud/start/end).
func (r *scheduleRepositoryImpl) Save(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	if res.Host == "" || res.Cloud == "" {
		return domain.Reservation{}, fmt.Errorf("host and cloud are required: %w", ErrInvalidEntity)
	}
	if !res.Start.Before(res.End) {
		return domain.Reservation{}, fmt.Errorf("start must be before end: %w", ErrInvalidEntity)
	}
	res.Start = res.Start.UTC()
	res.End = res.End.UTC()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		hostID, err := lookupID(ctx, tx, "hosts", res.Host)
		if err != nil {
			return err
		}
		cloudID, err := lookupID(ctx, tx, "clouds", res.Cloud)
		if err != nil {
			return err
		}

		if res.ID == 0 {
			if err := tx.QueryRowContext(ctx,
				"SELECT COALESCE(MAX(idx), 0) + 1 FROM schedules WHERE host_id = ?", hostID).Scan(&res.Index); err != nil {
				return fmt.Errorf("failed to allocate schedule index: %w", err)
			}
			result, err := tx.ExecContext(ctx,
				"INSERT INTO schedules (host_id, cloud_id, idx, start_at, end_at) VALUES (?, ?, ?, ?, ?)",
				hostID, cloudID, res.Index, res.Start.Unix(), res.End.Unix())
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("schedule %d on %s: %w", res.Index, res.Host, ErrDuplicate)
				}
				return fmt.Errorf("failed to create schedule: %w", err)
			}
			if res.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get schedule ID: %w", err)
			}
			return nil
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE schedules SET cloud_id = ?, start_at = ?, end_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND host_id = ?`,
			cloudID, res.Start.Unix(), res.End.Unix(), res.ID, hostID)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("schedule %d on %s: %w", res.Index, res.Host, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func lookupID(ctx context.Context, tx *sql.Tx, table, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE name = ?", name).Scan(&id)
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("%s %s: %w", table[:len(table)-1], name, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return id, nil
}

// FindByID retrieves a reservation by its row ID
func (r *scheduleRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Reservation, error) {
	rows, err := r.query(ctx, selectSchedule+" WHERE s.id = ?", id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(rows) == 0 {
		return domain.Reservation{}, ErrNotFound
	}
	return rows[0], nil
}

// FindAll retrieves every reservation ordered by host and start
func (r *scheduleRepositoryImpl) FindAll(ctx context.Context) ([]domain.Reservation, error) {
	return r.query(ctx, selectSchedule+" ORDER BY h.name, s.start_at")
}

// FindByHost retrieves the reservations of one host ordered by start
func (r *scheduleRepositoryImpl) FindByHost(ctx context.Context, host string) ([]domain.Reservation, error) {
	return r.query(ctx, selectSchedule+" WHERE h.name = ? ORDER BY s.start_at", host)
}

// FindByCloud retrieves the reservations assigning any host to cloud
func (r *scheduleRepositoryImpl) FindByCloud(ctx context.Context, cloud string) ([]domain.Reservation, error) {
	return r.query(ctx, selectSchedule+" WHERE c.name = ? ORDER BY h.name, s.start_at", cloud)
}

// FindByHostAndIndex retrieves a reservation by its per-host identity
func (r *scheduleRepositoryImpl) FindByHostAndIndex(ctx context.Context, host string, index int64) (domain.Reservation, error) {
	rows, err := r.query(ctx, selectSchedule+" WHERE h.name = ? AND s.idx = ?", host, index)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(rows) == 0 {
		return domain.Reservation{}, fmt.Errorf("schedule %d on %s: %w", index, host, ErrNotFound)
	}
	return rows[0], nil
}

// DeleteByID removes a reservation by its row ID
func (r *scheduleRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	return r.delete(ctx, "DELETE FROM schedules WHERE id = ?", id)
}

// DeleteByHostAndIndex removes a reservation by its per-host identity
func (r *scheduleRepositoryImpl) DeleteByHostAndIndex(ctx context.Context, host string, index int64) error {
	err := r.delete(ctx,
		"DELETE FROM schedules WHERE idx = ? AND host_id = (SELECT id FROM hosts WHERE name = ?)", index, host)
	if err != nil {
		return fmt.Errorf("schedule %d on %s: %w", index, host, err)
	}
	return nil
}

// ExistsByID checks if a reservation exists by its row ID
func (r *scheduleRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schedules WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check schedule existence: %w", err)
	}
	return count > 0, nil
}

// Close releases the cached prepared statements
func (r *scheduleRepositoryImpl) Close() error {
	return r.stmts.close()
}

func (r *scheduleRepositoryImpl) delete(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduleRepositoryImpl) query(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	stmt, err := r.stmts.get(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare schedule query: %w", err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedules: %w", err)
	}
	defer closeRows(rows)

	var out []domain.Reservation
	for rows.Next() {
		var (
			res        domain.Reservation
			start, end int64
		)
		if err := rows.Scan(&res.ID, &res.Index, &res.Host, &res.Cloud, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		res.Start = time.Unix(start, 0).UTC()
		res.End = time.Unix(end, 0).UTC()
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return out, nil
}
