package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/testutil"
)

// fixedNow is the clock used by every scheduler test.
const fixedNow = "2024-01-01 06:00"

func newTestScheduler(t *testing.T) (*Scheduler, *sql.DB) {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t, t.Name())
	schedules := repository.NewScheduleRepository(db)
	t.Cleanup(func() {
		schedules.Close()
		cleanup()
	})

	for _, name := range []string{"cloud02", "cloud03"} {
		testutil.SeedCloud(t, db, domain.Cloud{Name: name})
	}
	for _, name := range []string{"f01", "f02", "h1"} {
		testutil.SeedHost(t, db, domain.Host{Name: name})
	}

	s := New(repository.NewHostRepository(db), repository.NewCloudRepository(db), schedules)
	now := testutil.MustTime(t, fixedNow)
	s.Now = func() time.Time { return now }
	return s, db
}

func mustCreate(t *testing.T, s *Scheduler, host, cloud, start, end string) domain.Reservation {
	t.Helper()

	r, err := s.Create(context.Background(), CreateRequest{
		Host:  host,
		Cloud: cloud,
		Start: testutil.MustTime(t, start),
		End:   testutil.MustTime(t, end),
	})
	if err != nil {
		t.Fatalf("Failed to create reservation for %s: %v", host, err)
	}
	return r
}

// insertRaw writes a reservation straight into the table, skipping every check.
func insertRaw(t *testing.T, db *sql.DB, host, cloud string, idx int64, start, end string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO schedules (host_id, cloud_id, idx, start_at, end_at)
		SELECT h.id, c.id, ?, ?, ? FROM hosts h, clouds c WHERE h.name = ? AND c.name = ?`,
		idx, testutil.MustTime(t, start).Unix(), testutil.MustTime(t, end).Unix(), host, cloud)
	if err != nil {
		t.Fatalf("Failed to insert raw reservation: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
