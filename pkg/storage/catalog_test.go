package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveOwned(t *testing.T, store *Store, owner, resource, variant string, size int) *StoredFile {
	t.Helper()
	stored, err := store.Save(context.Background(), SaveRequest{
		Data:       make([]byte, size),
		OwnerID:    owner,
		ResourceID: resource,
		Variant:    variant,
	})
	require.NoError(t, err)
	// Creation timestamps must differ for deterministic ordering.
	time.Sleep(2 * time.Millisecond)
	return stored
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	first := saveOwned(t, store, "u1", "a1", "A4", 10)
	second := saveOwned(t, store, "u1", "a2", "A4", 10)
	third := saveOwned(t, store, "u1", "a3", "A4", 10)

	entries, err := store.List(context.Background(), NamespaceTemporary, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, third.Filename, entries[0].Filename)
	assert.Equal(t, second.Filename, entries[1].Filename)
	assert.Equal(t, first.Filename, entries[2].Filename)
	for _, entry := range entries {
		assert.True(t, entry.Exists)
		assert.Equal(t, "/generated-maps/temporary/"+entry.Filename, entry.URL)
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	saveOwned(t, store, "u1", "a1", "A4", 10)
	saveOwned(t, store, "u1", "a2", "A3", 10)
	saveOwned(t, store, "u2", "a3", "A4", 10)
	ctx := context.Background()

	byOwner, err := store.List(ctx, NamespaceTemporary, ListOptions{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	byVariant, err := store.List(ctx, NamespaceTemporary, ListOptions{Variant: "A4"})
	require.NoError(t, err)
	assert.Len(t, byVariant, 2)

	both, err := store.List(ctx, NamespaceTemporary, ListOptions{OwnerID: "u1", Variant: "A4"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "u1", both[0].OwnerID)
	assert.Equal(t, "A4", both[0].Variant)

	none, err := store.List(ctx, NamespaceTemporary, ListOptions{OwnerID: "u3"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListPagination(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		saveOwned(t, store, "u1", "a1", "A4", 10)
	}
	ctx := context.Background()

	page1, err := store.List(ctx, NamespaceTemporary, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := store.List(ctx, NamespaceTemporary, ListOptions{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.NotEqual(t, page1[0].Filename, page2[0].Filename)

	page3, err := store.List(ctx, NamespaceTemporary, ListOptions{Offset: 4, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	beyond, err := store.List(ctx, NamespaceTemporary, ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestListFlagsMissingPayload(t *testing.T) {
	store := newTestStore(t)
	stored := saveOwned(t, store, "u1", "a1", "A4", 10)
	require.NoError(t, os.Remove(payloadPath(t, store, stored.Filename, NamespaceTemporary)))

	entries, err := store.List(context.Background(), NamespaceTemporary, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "missing payload must still be listed")
	assert.False(t, entries[0].Exists)
}

func TestListOtherNamespaceExcluded(t *testing.T) {
	store := newTestStore(t)
	saveOwned(t, store, "u1", "a1", "A4", 10)

	entries, err := store.List(context.Background(), NamespacePermanent, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatsAggregation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Stats(ctx, NamespaceTemporary)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, int64(0), empty.TotalBytes)

	saveOwned(t, store, "u1", "a1", "A4", 100)
	saveOwned(t, store, "u2", "a2", "A3", 250)

	stats, err := store.Stats(ctx, NamespaceTemporary)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, int64(350), stats.TotalBytes)
}

func TestListRejectsMetadataNamespace(t *testing.T) {
	store := newTestStore(t)
	_, err := store.List(context.Background(), NamespaceMetadata, ListOptions{})
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindValidationFailed, serr.Kind)
}
