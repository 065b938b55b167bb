package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jbweber/homelab/hutch/internal/domain"
)

// HostRepository defines domain-specific operations for hosts
type HostRepository interface {
	Repository[domain.Host, int64]
	FindByName(ctx context.Context, name string) (domain.Host, error)
	FindByCloud(ctx context.Context, cloud string) ([]domain.Host, error)
	DeleteByName(ctx context.Context, name string) error
	UpdateCloud(ctx context.Context, name, cloud string) error
}

type hostRepositoryImpl struct {
	db *sql.DB
}

// NewHostRepository creates a new host repository
func NewHostRepository(db *sql.DB) HostRepository {
	return &hostRepositoryImpl{db: db}
}

const selectHost = `SELECT id, name, host_type, cloud FROM hosts`

// Save creates or updates a host together with its ordered interfaces
func (r *hostRepositoryImpl) Save(ctx context.Context, host domain.Host) (domain.Host, error) {
	if host.Name == "" {
		return domain.Host{}, fmt.Errorf("host name is required: %w", ErrInvalidEntity)
	}
	if host.Cloud == "" {
		host.Cloud = domain.DefaultCloud
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if host.ID == 0 {
			res, err := tx.ExecContext(ctx,
				"INSERT INTO hosts (name, host_type, cloud) VALUES (?, ?, ?)",
				host.Name, host.HostType, host.Cloud)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("host %s: %w", host.Name, ErrDuplicate)
				}
				return fmt.Errorf("failed to create host: %w", err)
			}
			if host.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get host ID: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx,
				"UPDATE hosts SET name = ?, host_type = ?, cloud = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
				host.Name, host.HostType, host.Cloud, host.ID)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("host %s: %w", host.Name, ErrDuplicate)
				}
				return fmt.Errorf("failed to update host: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("host with ID %d: %w", host.ID, ErrNotFound)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM interfaces WHERE host_id = ?", host.ID); err != nil {
				return fmt.Errorf("failed to clear interfaces: %w", err)
			}
		}

		for i, iface := range host.Interfaces {
			if iface.Name == "" {
				return fmt.Errorf("interface %d name is required: %w", i, ErrInvalidEntity)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO interfaces (host_id, ordinal, name, mac, switch_ip, port) VALUES (?, ?, ?, ?, ?, ?)",
				host.ID, i, iface.Name, iface.MAC, iface.SwitchIP, iface.Port)
			if err != nil {
				return fmt.Errorf("failed to save interface %s: %w", iface.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Host{}, err
	}
	return host, nil
}

// FindByID retrieves a host by its ID
func (r *hostRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Host, error) {
	return r.findOne(ctx, selectHost+" WHERE id = ?", id)
}

// FindByName retrieves a host by its unique name
func (r *hostRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Host, error) {
	host, err := r.findOne(ctx, selectHost+" WHERE name = ?", name)
	if err != nil {
		return domain.Host{}, fmt.Errorf("host %s: %w", name, err)
	}
	return host, nil
}

// FindAll retrieves all hosts ordered by name
func (r *hostRepositoryImpl) FindAll(ctx context.Context) ([]domain.Host, error) {
	return r.findMany(ctx, selectHost+" ORDER BY name")
}

// FindByCloud retrieves hosts whose cached owner is cloud
func (r *hostRepositoryImpl) FindByCloud(ctx context.Context, cloud string) ([]domain.Host, error) {
	return r.findMany(ctx, selectHost+" WHERE cloud = ? ORDER BY name", cloud)
}

// DeleteByID removes a host and, by cascade, its interfaces and reservations
func (r *hostRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	return r.delete(ctx, "DELETE FROM hosts WHERE id = ?", id)
}

// DeleteByName removes a host by name
func (r *hostRepositoryImpl) DeleteByName(ctx context.Context, name string) error {
	if err := r.delete(ctx, "DELETE FROM hosts WHERE name = ?", name); err != nil {
		return fmt.Errorf("host %s: %w", name, err)
	}
	return nil
}

// ExistsByID checks if a host exists by its ID
func (r *hostRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hosts WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check host existence: %w", err)
	}
	return count > 0, nil
}

// UpdateCloud rewrites the cached owner of a host
func (r *hostRepositoryImpl) UpdateCloud(ctx context.Context, name, cloud string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE hosts SET cloud = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?", cloud, name)
	if err != nil {
		return fmt.Errorf("failed to update host cloud: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("host %s: %w", name, ErrNotFound)
	}
	return nil
}

func (r *hostRepositoryImpl) delete(ctx context.Context, query string, arg any) error {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
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

func (r *hostRepositoryImpl) findOne(ctx context.Context, query string, arg any) (domain.Host, error) {
	var h domain.Host
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&h.ID, &h.Name, &h.HostType, &h.Cloud)
	if err != nil {
		if isNotFoundError(err) {
			return domain.Host{}, ErrNotFound
		}
		return domain.Host{}, fmt.Errorf("failed to find host: %w", err)
	}
	if h.Interfaces, err = r.interfaces(ctx, h.ID); err != nil {
		return domain.Host{}, err
	}
	return h, nil
}

func (r *hostRepositoryImpl) findMany(ctx context.Context, query string, args ...any) ([]domain.Host, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find hosts: %w", err)
	}

	var hosts []domain.Host
	for rows.Next() {
		var h domain.Host
		if err := rows.Scan(&h.ID, &h.Name, &h.HostType, &h.Cloud); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, h)
	}
	err = rows.Err()
	// release the connection before loading interfaces
	closeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("error iterating hosts: %w", err)
	}

	for i := range hosts {
		if hosts[i].Interfaces, err = r.interfaces(ctx, hosts[i].ID); err != nil {
			return nil, err
		}
	}
	return hosts, nil
}

func (r *hostRepositoryImpl) interfaces(ctx context.Context, hostID int64) ([]domain.Interface, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name, mac, switch_ip, port FROM interfaces WHERE host_id = ? ORDER BY ordinal", hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to find interfaces: %w", err)
	}
	defer closeRows(rows)

	ifaces := []domain.Interface{}
	for rows.Next() {
		var iface domain.Interface
		if err := rows.Scan(&iface.Name, &iface.MAC, &iface.SwitchIP, &iface.Port); err != nil {
			return nil, fmt.Errorf("failed to scan interface: %w", err)
		}
		ifaces = append(ifaces, iface)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interfaces: %w", err)
	}
	return ifaces, nil
}
