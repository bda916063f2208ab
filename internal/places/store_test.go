package places

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := Place{
		ID:           "p-1",
		UserID:       "user-1",
		Title:        "Two rooms on Andrássy",
		Description:  "Renovated",
		Address:      "Budapest, Andrássy út 20",
		Lat:          47.5030,
		Lng:          19.0620,
		RentPrice:    ptr(250000.0),
		UtilityCost:  ptr(30000.0),
		RoomCount:    ptr(2),
		PropertyType: PropertyApartment,
		Floor:        ptr(4),
		HasElevator:  ptr(false),
		Link:         "https://example.com/listing/1",
		Images:       []string{"https://example.com/1.jpg", "https://example.com/2.jpg"},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	require.NoError(t, store.Create(ctx, p))

	got, err := store.Get(ctx, "p-1")
	require.NoError(t, err)

	assert.Equal(t, p.Title, got.Title)
	assert.Equal(t, p.Address, got.Address)
	assert.InDelta(t, p.Lat, got.Lat, 1e-9)
	assert.Equal(t, 250000.0, *got.RentPrice)
	assert.Nil(t, got.CommonCost)
	assert.Nil(t, got.Deposit)
	assert.Equal(t, 2, *got.RoomCount)
	assert.Equal(t, 4, *got.Floor)
	require.NotNil(t, got.HasElevator)
	assert.False(t, *got.HasElevator)
	assert.Equal(t, p.Images, got.Images)
	assert.Equal(t, 280000.0, got.TotalPrice)
	assert.True(t, created.Equal(got.CreatedAt))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListByOwnerNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Create(ctx, Place{ID: id, UserID: "owner", Title: id, CreatedAt: ts, UpdatedAt: ts}))
	}
	require.NoError(t, store.Create(ctx, Place{ID: "foreign", UserID: "someone-else", Title: "x", CreatedAt: base, UpdatedAt: base}))

	list, err := store.ListByOwner(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, placeIDs(list))

	empty, err := store.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStoreOwnedWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, Place{ID: "p", UserID: "owner", Title: "Before", CreatedAt: now, UpdatedAt: now}))

	t.Run("update by owner", func(t *testing.T) {
		err := store.UpdateOwned(ctx, Place{ID: "p", UserID: "owner", Title: "After", HasElevator: ptr(true), UpdatedAt: now})
		require.NoError(t, err)

		got, err := store.Get(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, "After", got.Title)
		assert.True(t, *got.HasElevator)
	})

	t.Run("update by someone else", func(t *testing.T) {
		err := store.UpdateOwned(ctx, Place{ID: "p", UserID: "intruder", Title: "Hijacked", UpdatedAt: now})
		assert.ErrorIs(t, err, ErrForbidden)

		got, err := store.Get(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, "After", got.Title)
	})

	t.Run("update missing", func(t *testing.T) {
		err := store.UpdateOwned(ctx, Place{ID: "nope", UserID: "owner", Title: "x", UpdatedAt: now})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete by someone else", func(t *testing.T) {
		assert.ErrorIs(t, store.DeleteOwned(ctx, "p", "intruder"), ErrForbidden)
	})

	t.Run("delete by owner", func(t *testing.T) {
		require.NoError(t, store.DeleteOwned(ctx, "p", "owner"))
		_, err := store.Get(ctx, "p")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteOwned(ctx, "p", "owner"), ErrNotFound)
	})
}
