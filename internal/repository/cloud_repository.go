package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
)

// CloudRepository defines domain-specific operations for clouds. Every Save
// appends one CloudHistory row in the same transaction.
type CloudRepository interface {
	Repository[domain.Cloud, int64]
	FindByName(ctx context.Context, name string) (domain.Cloud, error)
	FindByOwner(ctx context.Context, owner string) ([]domain.Cloud, error)
	DeleteByName(ctx context.Context, name string) error
	History(ctx context.Context, name string) ([]domain.CloudHistory, error)
}

type cloudRepositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

// NewCloudRepository creates a new cloud repository
func NewCloudRepository(db *sql.DB) CloudRepository {
	return &cloudRepositoryImpl{db: db, now: time.Now}
}

const selectCloud = `SELECT id, name, description, owner, ticket, ccusers, qinq, wipe, vlan_id FROM clouds`

// Save creates or updates a cloud and records its history
func (r *cloudRepositoryImpl) Save(ctx context.Context, cloud domain.Cloud) (domain.Cloud, error) {
	if err := validateCloud(cloud); err != nil {
		return domain.Cloud{}, err
	}

	ccusers := strings.Join(cloud.CCUsers, ",")
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if cloud.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO clouds (name, description, owner, ticket, ccusers, qinq, wipe, vlan_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				cloud.Name, cloud.Description, cloud.Owner, cloud.Ticket, ccusers,
				boolToInt(cloud.QinQ), boolToInt(cloud.Wipe), cloud.VlanID)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("cloud %s: %w", cloud.Name, ErrDuplicate)
				}
				return fmt.Errorf("failed to create cloud: %w", err)
			}
			if cloud.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get cloud ID: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE clouds
				SET name = ?, description = ?, owner = ?, ticket = ?, ccusers = ?, qinq = ?, wipe = ?, vlan_id = ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				cloud.Name, cloud.Description, cloud.Owner, cloud.Ticket, ccusers,
				boolToInt(cloud.QinQ), boolToInt(cloud.Wipe), cloud.VlanID, cloud.ID)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("cloud %s: %w", cloud.Name, ErrDuplicate)
				}
				return fmt.Errorf("failed to update cloud: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("cloud with ID %d: %w", cloud.ID, ErrNotFound)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO cloud_history (name, description, owner, ticket, ccusers, qinq, wipe, vlan_id, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cloud.Name, cloud.Description, cloud.Owner, cloud.Ticket, ccusers,
			boolToInt(cloud.QinQ), boolToInt(cloud.Wipe), cloud.VlanID, r.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to record cloud history: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Cloud{}, err
	}
	return cloud, nil
}

func validateCloud(cloud domain.Cloud) error {
	if cloud.Name == "" {
		return fmt.Errorf("cloud name is required: %w", ErrInvalidEntity)
	}
	if _, err := cloud.Index(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidEntity)
	}
	if cloud.VlanID != nil && (*cloud.VlanID <= 0 || *cloud.VlanID > 4095) {
		return fmt.Errorf("invalid vlan %d: %w", *cloud.VlanID, ErrInvalidEntity)
	}
	return nil
}

// FindByID retrieves a cloud by its ID
func (r *cloudRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Cloud, error) {
	return r.findOne(ctx, selectCloud+" WHERE id = ?", id)
}

// FindByName retrieves a cloud by its unique name
func (r *cloudRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Cloud, error) {
	cloud, err := r.findOne(ctx, selectCloud+" WHERE name = ?", name)
	if err != nil {
		return domain.Cloud{}, fmt.Errorf("cloud %s: %w", name, err)
	}
	return cloud, nil
}

// FindAll retrieves all clouds ordered by name
func (r *cloudRepositoryImpl) FindAll(ctx context.Context) ([]domain.Cloud, error) {
	return r.findMany(ctx, selectCloud+" ORDER BY name")
}

// FindByOwner retrieves clouds owned by owner
func (r *cloudRepositoryImpl) FindByOwner(ctx context.Context, owner string) ([]domain.Cloud, error) {
	return r.findMany(ctx, selectCloud+" WHERE owner = ? ORDER BY name", owner)
}

// DeleteByID removes a cloud by its ID
func (r *cloudRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	return r.delete(ctx, "DELETE FROM clouds WHERE id = ?", id)
}

// DeleteByName removes a cloud by name. Clouds referenced by reservations are kept.
func (r *cloudRepositoryImpl) DeleteByName(ctx context.Context, name string) error {
	if err := r.delete(ctx, "DELETE FROM clouds WHERE name = ?", name); err != nil {
		return fmt.Errorf("cloud %s: %w", name, err)
	}
	return nil
}

// ExistsByID checks if a cloud exists by its ID
func (r *cloudRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clouds WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check cloud existence: %w", err)
	}
	return count > 0, nil
}

// History returns the recorded snapshots of a cloud, oldest first
func (r *cloudRepositoryImpl) History(ctx context.Context, name string) ([]domain.CloudHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, owner, ticket, ccusers, qinq, wipe, vlan_id, recorded_at
		FROM cloud_history WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find cloud history: %w", err)
	}
	defer closeRows(rows)

	var history []domain.CloudHistory
	for rows.Next() {
		var (
			h        domain.CloudHistory
			ccusers  string
			vlan     sql.NullInt64
			recorded int64
		)
		if err := rows.Scan(&h.ID, &h.Name, &h.Description, &h.Owner, &h.Ticket, &ccusers,
			&h.QinQ, &h.Wipe, &vlan, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan cloud history: %w", err)
		}
		h.CCUsers = splitUsers(ccusers)
		h.VlanID = nullableInt(vlan)
		h.RecordedAt = time.Unix(recorded, 0).UTC()
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cloud history: %w", err)
	}
	return history, nil
}

func (r *cloudRepositoryImpl) delete(ctx context.Context, query string, arg any) error {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("cloud still has reservations: %w", ErrInUse)
		}
		return fmt.Errorf("failed to delete cloud: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCloud(row rowScanner) (domain.Cloud, error) {
	var (
		c       domain.Cloud
		ccusers string
		vlan    sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Owner, &c.Ticket, &ccusers, &c.QinQ, &c.Wipe, &vlan); err != nil {
		return domain.Cloud{}, err
	}
	c.CCUsers = splitUsers(ccusers)
	c.VlanID = nullableInt(vlan)
	return c, nil
}

func (r *cloudRepositoryImpl) findOne(ctx context.Context, query string, arg any) (domain.Cloud, error) {
	c, err := scanCloud(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if isNotFoundError(err) {
			return domain.Cloud{}, ErrNotFound
		}
		return domain.Cloud{}, fmt.Errorf("failed to find cloud: %w", err)
	}
	return c, nil
}

func (r *cloudRepositoryImpl) findMany(ctx context.Context, query string, args ...any) ([]domain.Cloud, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find clouds: %w", err)
	}
	defer closeRows(rows)

	var clouds []domain.Cloud
	for rows.Next() {
		c, err := scanCloud(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cloud: %w", err)
		}
		clouds = append(clouds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clouds: %w", err)
	}
	return clouds, nil
}

func splitUsers(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
