package migrations

import (
	"database/sql"
)

func execAll(tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetInitialMigrations returns all initial migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_inventory_tables",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`CREATE TABLE clouds (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						description TEXT NOT NULL DEFAULT '',
						owner TEXT NOT NULL DEFAULT '',
						ticket TEXT NOT NULL DEFAULT '',
						ccusers TEXT NOT NULL DEFAULT '',
						qinq INTEGER NOT NULL DEFAULT 0,
						wipe INTEGER NOT NULL DEFAULT 0,
						vlan_id INTEGER CHECK (vlan_id IS NULL OR (vlan_id > 0 AND vlan_id < 4096)),
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE cloud_history (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL,
						description TEXT NOT NULL DEFAULT '',
						owner TEXT NOT NULL DEFAULT '',
						ticket TEXT NOT NULL DEFAULT '',
						ccusers TEXT NOT NULL DEFAULT '',
						qinq INTEGER NOT NULL DEFAULT 0,
						wipe INTEGER NOT NULL DEFAULT 0,
						vlan_id INTEGER,
						recorded_at INTEGER NOT NULL
					)`,
					`CREATE TABLE hosts (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						host_type TEXT NOT NULL DEFAULT '',
						cloud TEXT NOT NULL DEFAULT 'cloud01',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE interfaces (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						host_id INTEGER NOT NULL,
						ordinal INTEGER NOT NULL,
						name TEXT NOT NULL,
						mac TEXT NOT NULL DEFAULT '',
						switch_ip TEXT NOT NULL DEFAULT '',
						port TEXT NOT NULL DEFAULT '',
						FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE,
						UNIQUE (host_id, ordinal)
					)`,
				})
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`DROP TABLE IF EXISTS interfaces`,
					`DROP TABLE IF EXISTS hosts`,
					`DROP TABLE IF EXISTS cloud_history`,
					`DROP TABLE IF EXISTS clouds`,
				})
			},
		},
		{
			Version: 2,
			Name:    "create_schedules_table",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`CREATE TABLE schedules (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						host_id INTEGER NOT NULL,
						cloud_id INTEGER NOT NULL,
						idx INTEGER NOT NULL,
						start_at INTEGER NOT NULL,
						end_at INTEGER NOT NULL,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						CHECK (start_at < end_at),
						FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE,
						FOREIGN KEY (cloud_id) REFERENCES clouds(id) ON DELETE RESTRICT,
						UNIQUE (host_id, idx)
					)`,
				})
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx, []string{`DROP TABLE IF EXISTS schedules`})
			},
		},
	}
}
