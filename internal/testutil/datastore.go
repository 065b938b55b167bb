package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jbweber/homelab/hutch/internal/datastore"
	"github.com/jbweber/homelab/hutch/internal/domain"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates and returns a migrated in-memory test database.
func SetupTestDB(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()

	ds, err := datastore.New(NewTestDSN(testName))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		if err := ds.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	}

	return ds.DB, cleanup
}

// MustTime parses a "YYYY-MM-DD HH:MM" timestamp in UTC.
func MustTime(t *testing.T, value string) time.Time {
	t.Helper()

	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return ts
}

// SeedCloud inserts a cloud row directly.
func SeedCloud(t *testing.T, db *sql.DB, c domain.Cloud) int64 {
	t.Helper()

	var qinq int
	if c.QinQ {
		qinq = 1
	}
	res, err := db.ExecContext(context.Background(),
		"INSERT INTO clouds (name, owner, qinq, vlan_id) VALUES (?, ?, ?, ?)",
		c.Name, c.Owner, qinq, c.VlanID)
	if err != nil {
		t.Fatalf("Failed to seed cloud %s: %v", c.Name, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// SeedHost inserts a host row and its interfaces directly.
func SeedHost(t *testing.T, db *sql.DB, h domain.Host) int64 {
	t.Helper()

	cloud := h.Cloud
	if cloud == "" {
		cloud = domain.DefaultCloud
	}
	res, err := db.ExecContext(context.Background(),
		"INSERT INTO hosts (name, host_type, cloud) VALUES (?, ?, ?)", h.Name, h.HostType, cloud)
	if err != nil {
		t.Fatalf("Failed to seed host %s: %v", h.Name, err)
	}
	id, _ := res.LastInsertId()

	for i, iface := range h.Interfaces {
		_, err := db.ExecContext(context.Background(),
			"INSERT INTO interfaces (host_id, ordinal, name, mac, switch_ip, port) VALUES (?, ?, ?, ?, ?, ?)",
			id, i, iface.Name, iface.MAC, iface.SwitchIP, iface.Port)
		if err != nil {
			t.Fatalf("Failed to seed interface %s on %s: %v", iface.Name, h.Name, err)
		}
	}
	return id
}
