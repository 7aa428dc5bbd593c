package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

func TestMemorySavedParking_SaveListDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySavedParking()

	saved, err := s.Save(ctx, SavedParking{
		Label: "Office basement",
		Point: geo.Point{Latitude: 14.5995, Longitude: 120.9842},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Office basement", list[0].Label)

	require.NoError(t, s.Delete(ctx, saved.ID))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, s.Delete(ctx, saved.ID), ErrNotFound)
}

func TestMemorySavedParking_SubscribeNotifies(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySavedParking()

	var notified int
	unsub := s.Subscribe(func() { notified++ })

	saved, err := s.Save(ctx, SavedParking{Label: "Mall"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, saved.ID))
	assert.Equal(t, 2, notified)

	unsub()
	_, err = s.Save(ctx, SavedParking{Label: "Another"})
	require.NoError(t, err)
	assert.Equal(t, 2, notified, "unsubscribed callback stays silent")
}

func TestMemorySearchHistory_NewestFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySearchHistory(3)

	for _, q := range []string{"first", "second", "third", "fourth"} {
		_, err := s.Add(ctx, SearchEntry{Query: q})
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3, "oldest entry trimmed")
	assert.Equal(t, "fourth", recent[0].Query)
	assert.Equal(t, "second", recent[2].Query)

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "fourth", limited[0].Query)

	require.NoError(t, s.Clear(ctx))
	recent, err = s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
