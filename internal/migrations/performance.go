package migrations

import (
	"database/sql"
)

// GetPerformanceMigrations returns performance optimization migrations
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 10,
			Name:    "add_performance_indices",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					"CREATE INDEX IF NOT EXISTS idx_interfaces_host_id ON interfaces(host_id)",
					"CREATE INDEX IF NOT EXISTS idx_hosts_cloud ON hosts(cloud)",
					"CREATE INDEX IF NOT EXISTS idx_clouds_owner ON clouds(owner)",
					"CREATE INDEX IF NOT EXISTS idx_cloud_history_name ON cloud_history(name)",
					"CREATE INDEX IF NOT EXISTS idx_schedules_host_window ON schedules(host_id, start_at, end_at)",
					"CREATE INDEX IF NOT EXISTS idx_schedules_cloud_id ON schedules(cloud_id)",
				})
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					"DROP INDEX IF EXISTS idx_interfaces_host_id",
					"DROP INDEX IF EXISTS idx_hosts_cloud",
					"DROP INDEX IF EXISTS idx_clouds_owner",
					"DROP INDEX IF EXISTS idx_cloud_history_name",
					"DROP INDEX IF EXISTS idx_schedules_host_window",
					"DROP INDEX IF EXISTS idx_schedules_cloud_id",
				})
			},
		},
	}
}
