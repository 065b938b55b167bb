package repository

import (
	"context"
	"testing"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCloudRepository_SaveAndFind(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t, t.Name())
	defer cleanup()

	repo := NewCloudRepository(db)
	cloud := domain.Cloud{
		Name:        "cloud02",
		Description: "perf lab",
		Owner:       "alice",
		Ticket:      "1234",
		CCUsers:     []string{"bob", "carol"},
		QinQ:        true,
		VlanID:      intPtr(1250),
	}

	saved, err := repo.Save(context.Background(), cloud)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	found, err := repo.FindByName(context.Background(), "cloud02")
	require.NoError(t, err)
	assert.Equal(t, saved, found)

	byOwner, err := repo.FindByOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)
}

func TestCloudRepository_Save_Validation(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t, t.Name())
	defer cleanup()

	repo := NewCloudRepository(db)
	cases := []domain.Cloud{
		{},
		{Name: "tenant"},
		{Name: "cloudXX"},
		{Name: "cloud02", VlanID: intPtr(5000)},
	}
	for _, c := range cases {
		_, err := repo.Save(context.Background(), c)
		assert.ErrorIs(t, err, ErrInvalidEntity, "cloud %+v", c)
	}
}

func TestCloudRepository_Save_Duplicate(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t, t.Name())
	defer cleanup()

	repo := NewCloudRepository(db)
	_, err := repo.Save(context.Background(), domain.Cloud{Name: "cloud02"})
	require.NoError(t, err)
	_, err = repo.Save(context.Background(), domain.Cloud{Name: "cloud02"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// the rejected create must not leave a history row behind
	history, err := repo.History(context.Background(), "cloud02")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCloudRepository_HistoryAppendsPerWrite(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t, t.Name())
	defer cleanup()

	repo := NewCloudRepository(db)
	saved, err := repo.Save(context.Background(), domain.Cloud{Name: "cloud03", Owner: "alice"})
	require.NoError(t, err)

	saved.Owner = "bob"
	_, err = repo.Save(context.Background(), saved)
	require.NoError(t, err)

	history, err := repo.History(context.Background(), "cloud03")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "alice", history[0].Owner)
	assert.Equal(t, "bob", history[1].Owner)
}

func TestCloudRepository_Delete(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t, t.Name())
	defer cleanup()

	repo := NewCloudRepository(db)
	testutil.SeedCloud(t, db, domain.Cloud{Name: "cloud02"})

	require.NoError(t, repo.DeleteByName(context.Background(), "cloud02"))
	assert.ErrorIs(t, repo.DeleteByName(context.Background(), "cloud02"), ErrNotFound)
}

func TestCloudRepository_DeleteInUse(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t, t.Name())
	defer cleanup()

	testutil.SeedCloud(t, db, domain.Cloud{Name: "cloud02"})
	testutil.SeedHost(t, db, domain.Host{Name: "f01"})
	_, err := NewScheduleRepository(db).Save(context.Background(), domain.Reservation{
		Host:  "f01",
		Cloud: "cloud02",
		Start: testutil.MustTime(t, "2024-01-01 00:00"),
		End:   testutil.MustTime(t, "2024-01-02 00:00"),
	})
	require.NoError(t, err)

	err = NewCloudRepository(db).DeleteByName(context.Background(), "cloud02")
	assert.ErrorIs(t, err, ErrInUse)
}
