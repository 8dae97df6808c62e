package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepCleanStore(t *testing.T) {
	store := newTestStore(t)
	saveTestArtifact(t, store, []byte("poster"), NamespaceTemporary)

	report, err := store.Reconciler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.OrphanedPayloads)
	assert.Empty(t, report.OrphanedMetadata)
	assert.Empty(t, report.RepairedMetadata)
	assert.Equal(t, 0, report.TempFilesRemoved)
}

func TestSweepReportsOrphanedPayload(t *testing.T) {
	store := newTestStore(t)

	// A payload without a sidecar: what a crash between the two atomic
	// writes leaves behind.
	filename, err := store.codec.Generate("u1", "a1", "A4", "png", time.Now())
	require.NoError(t, err)
	path := payloadPath(t, store, filename, NamespaceProcessing)
	require.NoError(t, os.WriteFile(path, []byte("half-born artifact"), 0644))

	report, sweepErr := store.Reconciler().Sweep(context.Background())
	require.NoError(t, sweepErr)
	require.Len(t, report.OrphanedPayloads, 1)
	assert.Equal(t, filename, report.OrphanedPayloads[0].Filename)
	assert.Equal(t, NamespaceProcessing, report.OrphanedPayloads[0].Namespace)

	// Reported, not deleted.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestSweepRepairsStaleMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	stored := saveTestArtifact(t, store, []byte("poster"), NamespaceTemporary)

	// Relocate the payload behind the store's back, as if a move's
	// metadata update had failed.
	src := payloadPath(t, store, stored.Filename, NamespaceTemporary)
	dst := payloadPath(t, store, stored.Filename, NamespacePermanent)
	require.NoError(t, os.Rename(src, dst))

	report, err := store.Reconciler().Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stored.Filename}, report.RepairedMetadata)

	record, err := store.Metadata(ctx, stored.Filename)
	require.NoError(t, err)
	assert.Equal(t, NamespacePermanent, record.Namespace)
	assert.NotNil(t, record.MovedAt)
}

func TestSweepReportsOrphanedMetadata(t *testing.T) {
	store := newTestStore(t)
	stored := saveTestArtifact(t, store, []byte("poster"), NamespaceTemporary)
	require.NoError(t, os.Remove(payloadPath(t, store, stored.Filename, NamespaceTemporary)))

	report, err := store.Reconciler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.OrphanedMetadata, stored.Filename)

	// The record itself is kept for operator inspection.
	_, metaErr := store.Metadata(context.Background(), stored.Filename)
	assert.NoError(t, metaErr)
}

func TestSweepRemovesStaleTempFiles(t *testing.T) {
	store := newTestStore(t)

	staleTemp := filepath.Join(store.dirs.namespaceRoot(NamespaceTemporary), "map_u1_a1_A4_1_deadbeef.png.tmp")
	require.NoError(t, os.WriteFile(staleTemp, []byte("debris"), 0644))
	old := time.Now().Add(-2 * tempFileMaxAge)
	require.NoError(t, os.Chtimes(staleTemp, old, old))

	freshTemp := filepath.Join(store.dirs.namespaceRoot(NamespaceTemporary), "map_u1_a2_A4_2_deadbeef.png.tmp")
	require.NoError(t, os.WriteFile(freshTemp, []byte("in flight"), 0644))

	report, err := store.Reconciler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TempFilesRemoved)

	_, staleErr := os.Stat(staleTemp)
	assert.True(t, os.IsNotExist(staleErr), "stale temp file should be removed")
	_, freshErr := os.Stat(freshTemp)
	assert.NoError(t, freshErr, "recent temp file must be left alone")
}

func TestSweepIgnoresMalformedNames(t *testing.T) {
	store := newTestStore(t)
	junk := filepath.Join(store.dirs.namespaceRoot(NamespaceTemporary), "README.txt")
	require.NoError(t, os.WriteFile(junk, []byte("not an artifact"), 0644))

	report, err := store.Reconciler().Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.OrphanedPayloads)
}

func TestWatcherTriggersSweep(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	stored := saveTestArtifact(t, store, []byte("poster"), NamespaceTemporary)

	watcher, err := store.Watcher(50 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Close()

	// Relocate the payload directly; the watcher should notice the
	// directory change and repair the stale record.
	src := payloadPath(t, store, stored.Filename, NamespaceTemporary)
	dst := payloadPath(t, store, stored.Filename, NamespacePermanent)
	require.NoError(t, os.Rename(src, dst))

	assert.Eventually(t, func() bool {
		record, err := store.Metadata(ctx, stored.Filename)
		return err == nil && record.Namespace == NamespacePermanent
	}, 5*time.Second, 25*time.Millisecond, "watcher never repaired the stale record")
}
