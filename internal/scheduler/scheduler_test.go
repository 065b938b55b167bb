package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_BoundaryScenario(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	first := mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")
	assert.Equal(t, int64(1), first.Index)

	_, err := s.Create(ctx, CreateRequest{
		Host:  "f01",
		Cloud: "cloud02",
		Start: testutil.MustTime(t, "2024-01-01 12:00"),
		End:   testutil.MustTime(t, "2024-01-01 18:00"),
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	third, err := s.Create(ctx, CreateRequest{
		Host:  "f01",
		Cloud: "cloud02",
		Start: testutil.MustTime(t, "2024-01-02 00:00"),
		End:   testutil.MustTime(t, "2024-01-03 00:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Index)

	stored, err := s.schedules.FindByHost(ctx, "f01")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreate_Validation(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	start := testutil.MustTime(t, "2024-01-01 00:00")
	end := testutil.MustTime(t, "2024-01-02 00:00")

	_, err := s.Create(ctx, CreateRequest{Host: "nope", Cloud: "cloud02", Start: start, End: end})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Create(ctx, CreateRequest{Host: "f01", Cloud: "cloud99", Start: start, End: end})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Create(ctx, CreateRequest{Host: "f01", Cloud: "cloud02", Start: end, End: start})
	assert.ErrorIs(t, err, repository.ErrInvalidEntity)

	stored, err := s.schedules.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestUpdate_ShortenEnd(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	days := []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-07", "2024-01-09", "2024-01-11"}
	for i := 0; i < 5; i++ {
		mustCreate(t, s, "f01", "cloud02", days[i]+" 00:00", days[i+1]+" 00:00")
	}
	before, err := s.schedules.FindByHost(ctx, "f01")
	require.NoError(t, err)

	updated, err := s.Update(ctx, UpdateRequest{
		Host:  "f01",
		Index: 5,
		End:   ptr(testutil.MustTime(t, "2024-01-10 00:00")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.Index)
	assert.True(t, updated.Start.Equal(testutil.MustTime(t, "2024-01-09 00:00")))
	assert.True(t, updated.End.Equal(testutil.MustTime(t, "2024-01-10 00:00")))

	after, err := s.schedules.FindByHost(ctx, "f01")
	require.NoError(t, err)
	require.Len(t, after, 5)
	assert.Equal(t, before[:4], after[:4])
}

func TestUpdate_Conflict(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")
	second := mustCreate(t, s, "f01", "cloud03", "2024-01-02 00:00", "2024-01-03 00:00")

	_, err := s.Update(ctx, UpdateRequest{
		Host:  "f01",
		Index: second.Index,
		Start: ptr(testutil.MustTime(t, "2024-01-01 12:00")),
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	got, err := s.schedules.FindByHostAndIndex(ctx, "f01", second.Index)
	require.NoError(t, err)
	assert.True(t, second.Start.Equal(got.Start))
	assert.Equal(t, "cloud03", got.Cloud)
}

func TestUpdate_PartialFieldsMergedBeforeValidation(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	r := mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")

	// a new start past the stored end is rejected as invalid, not as a conflict
	_, err := s.Update(ctx, UpdateRequest{Host: "f01", Index: r.Index, Start: ptr(testutil.MustTime(t, "2024-01-03 00:00"))})
	assert.ErrorIs(t, err, repository.ErrInvalidEntity)

	// moving within its own window does not conflict with itself
	updated, err := s.Update(ctx, UpdateRequest{
		Host:  "f01",
		Index: r.Index,
		Cloud: ptr("cloud03"),
		Start: ptr(testutil.MustTime(t, "2024-01-01 03:00")),
	})
	require.NoError(t, err)
	assert.Equal(t, "cloud03", updated.Cloud)

	_, err = s.Update(ctx, UpdateRequest{Host: "f01", Index: r.Index, Cloud: ptr("cloud99")})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Update(ctx, UpdateRequest{Host: "f01", Index: 42})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	r := mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")

	err := s.Delete(ctx, "f01", 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	stored, err := s.schedules.FindByHost(ctx, "f01")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	require.NoError(t, s.Delete(ctx, "f01", r.Index))
	assert.ErrorIs(t, s.Delete(ctx, "f01", r.Index), repository.ErrNotFound)
}

func TestWritesRefreshCachedOwner(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	// fixedNow falls inside this window
	r := mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")
	host, err := s.hosts.FindByName(ctx, "f01")
	require.NoError(t, err)
	assert.Equal(t, "cloud02", host.Cloud)

	require.NoError(t, s.Delete(ctx, "f01", r.Index))
	host, err = s.hosts.FindByName(ctx, "f01")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCloud, host.Cloud)
}

func TestRefreshOwners(t *testing.T) {
	s, db := newTestScheduler(t)
	insertRaw(t, db, "f02", "cloud03", 1, "2024-01-01 00:00", "2024-01-02 00:00")
	_, err := db.Exec("UPDATE hosts SET cloud = 'cloud09' WHERE name = 'h1'")
	require.NoError(t, err)

	require.NoError(t, s.RefreshOwners(context.Background()))

	hosts, err := s.hosts.FindAll(context.Background())
	require.NoError(t, err)
	owners := map[string]string{}
	for _, h := range hosts {
		owners[h.Name] = h.Cloud
	}
	assert.Equal(t, map[string]string{
		"f01": domain.DefaultCloud,
		"f02": "cloud03",
		"h1":  domain.DefaultCloud,
	}, owners)
}

func TestRefreshOwners_CollectsFailures(t *testing.T) {
	s, db := newTestScheduler(t)
	insertRaw(t, db, "f01", "cloud02", 1, "2024-01-01 00:00", "2024-01-03 00:00")
	insertRaw(t, db, "f01", "cloud03", 2, "2024-01-01 00:00", "2024-01-03 00:00")
	insertRaw(t, db, "f02", "cloud03", 1, "2024-01-01 00:00", "2024-01-02 00:00")

	err := s.RefreshOwners(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)

	host, err := s.hosts.FindByName(context.Background(), "f02")
	require.NoError(t, err)
	assert.Equal(t, "cloud03", host.Cloud)
}

// Concurrent writers racing for overlapping windows on one host must never
// leave two overlapping reservations behind.
func TestCreate_ConcurrentNoDoubleBooking(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	base := testutil.MustTime(t, "2024-03-01 00:00")

	const writers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// five distinct days, each requested five times
			start := base.Add(time.Duration(i%5) * 24 * time.Hour)
			_, err := s.Create(ctx, CreateRequest{
				Host:  "f01",
				Cloud: "cloud02",
				Start: start,
				End:   start.Add(24 * time.Hour),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if !errors.Is(err, ErrUnavailable) {
				failures = append(failures, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 5, succeeded)

	stored, err := s.schedules.FindByHost(ctx, "f01")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for i := range stored {
		for j := range stored {
			if i == j {
				continue
			}
			r1, r2 := stored[i], stored[j]
			assert.True(t, !r1.Start.Before(r2.End) || !r2.Start.Before(r1.End),
				"reservations %d and %d overlap", r1.Index, r2.Index)
		}
	}
	assert.Equal(t, 0, s.locks.size())
}

func TestCreate_ConcurrentSameWindow(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	base := testutil.MustTime(t, "2024-03-01 00:00")

	const writers = 20
	results := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := base.Add(time.Duration(i) * time.Hour)
			_, err := s.Create(ctx, CreateRequest{Host: "f02", Cloud: "cloud03", Start: start, End: start.Add(48 * time.Hour)})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 1, ok)
}

func TestHostLocks_Released(t *testing.T) {
	l := newHostLocks()
	unlock := l.lock("f01")
	assert.Equal(t, 1, l.size())

	done := make(chan struct{})
	go func() {
		u := l.lock("f01")
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-done
	assert.Equal(t, 0, l.size())
}

func TestCreate_SubSecondTimesTruncated(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	base := testutil.MustTime(t, "2024-02-01 10:00")
	res, err := s.Create(ctx, CreateRequest{
		Host:  "f01",
		Cloud: "cloud02",
		Start: base.Add(700 * time.Millisecond),
		End:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, res.Start.Equal(base), "start %s", res.Start)

	current, err := s.CurrentSchedule(ctx, "f01", base.Add(200*time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.True(t, current.Start.Equal(res.Start), "returned reservation matches the stored start")

	// a window inside one second is empty once truncated
	_, err = s.Create(ctx, CreateRequest{
		Host:  "f02",
		Cloud: "cloud02",
		Start: base.Add(100 * time.Millisecond),
		End:   base.Add(900 * time.Millisecond),
	})
	assert.ErrorIs(t, err, repository.ErrInvalidEntity)
}

func TestUpdate_SubSecondWindowRejected(t *testing.T) {
	s, _ := newTestScheduler(t)
	r := mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")

	end := r.Start.Add(500 * time.Millisecond)
	_, err := s.Update(context.Background(), UpdateRequest{Host: "f01", Index: r.Index, End: &end})
	assert.ErrorIs(t, err, repository.ErrInvalidEntity)
}

func TestUpdate_UnknownCloud(t *testing.T) {
	s, _ := newTestScheduler(t)
	r := mustCreate(t, s, "f01", "cloud02", "2024-01-01 00:00", "2024-01-02 00:00")

	_, err := s.Update(context.Background(), UpdateRequest{Host: "f01", Index: r.Index, Cloud: ptr("cloud99")})
	assert.ErrorIs(t, err, ErrUnknownCloud)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
