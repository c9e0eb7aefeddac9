package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashbot/internal/storage"
)

func TestSeenCacheMarkAndLookup(t *testing.T) {
	cache := NewSeenCache(storage.NewMemoryBackend(), false, zap.NewNop())
	ctx := context.Background()

	seen, err := cache.IsSeen(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Mark(ctx, "p1", SeenIgnored))
	require.NoError(t, cache.Mark(ctx, "p2", SeenResponded))

	seen, err = cache.IsSeen(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, seen)

	status, err := cache.Status(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, SeenResponded, status)

	snapshot, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]SeenStatus{
		"p1": SeenIgnored,
		"p2": SeenResponded,
	}, snapshot)
}

func TestSeenCacheRespondedIsTerminal(t *testing.T) {
	cache := NewSeenCache(storage.NewMemoryBackend(), false, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "p1", SeenResponded))
	require.NoError(t, cache.Mark(ctx, "p1", SeenRejected))

	status, err := cache.Status(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, SeenResponded, status)
}

func TestSeenCachePruneKeepsResponded(t *testing.T) {
	cache := NewSeenCache(storage.NewMemoryBackend(), false, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "answered", SeenResponded))
	require.NoError(t, cache.Mark(ctx, "skipped", SeenIgnored))
	require.NoError(t, cache.Mark(ctx, "declined", SeenRejected))

	pruned, err := cache.Prune(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	snapshot, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]SeenStatus{"answered": SeenResponded}, snapshot)
}

func TestSeenCachePruneNoopBeforeCutoff(t *testing.T) {
	cache := NewSeenCache(storage.NewMemoryBackend(), false, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "p1", SeenIgnored))

	pruned, err := cache.Prune(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
}

func TestSeenCacheDisabled(t *testing.T) {
	backend := storage.NewMemoryBackend()
	cache := NewSeenCache(backend, true, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "p1", SeenResponded))

	seen, err := cache.IsSeen(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, seen)

	snapshot, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	// Nothing is persisted while disabled.
	keys, err := backend.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
