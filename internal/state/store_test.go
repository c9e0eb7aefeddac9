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

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemoryBackend(), Defaults{
		ScrapeTimeoutSeconds: 30,
		RandomSleepMin:       1,
		RandomSleepMax:       120,
		RandomSleepEnabled:   true,
	}, zap.NewNop())
}

func TestStoreLoadSeedsDefaults(t *testing.T) {
	store := testStore(t)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Version)
	assert.Equal(t, int64(30), st.ScrapeTimeoutSeconds)
	assert.Equal(t, 30*time.Second, st.ScrapeTimeout())
	assert.True(t, st.RandomSleepEnabled)
	assert.False(t, st.PostLock)
	assert.True(t, st.TimeOfLastPost.IsZero())
}

func TestStoreSaveBumpsVersion(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	st, err := store.Load(ctx)
	require.NoError(t, err)

	st.PostLock = true
	st, err = store.Save(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version)

	st.PostLock = false
	st, err = store.Save(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Version)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
	assert.False(t, loaded.PostLock)
}

func TestStoreSaveDetectsConflict(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	stale, err := store.Load(ctx)
	require.NoError(t, err)

	fresh, err := store.Load(ctx)
	require.NoError(t, err)
	_, err = store.Save(ctx, fresh)
	require.NoError(t, err)

	stale.PostLock = true
	_, err = store.Save(ctx, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// The conflicting write must not have landed.
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, loaded.PostLock)
}

func TestPostsWithin(t *testing.T) {
	now := time.Now().UTC()
	st := BotState{RecentPosts: []time.Time{
		now.Add(-30 * time.Hour),
		now.Add(-23 * time.Hour),
		now.Add(-1 * time.Hour),
	}}

	assert.Equal(t, 2, st.PostsWithin(24*time.Hour, now))
	assert.Equal(t, 1, st.PostsWithin(2*time.Hour, now))
}

func TestPruneRecentPosts(t *testing.T) {
	now := time.Now().UTC()
	st := BotState{RecentPosts: []time.Time{
		now.Add(-30 * time.Hour),
		now.Add(-25 * time.Hour),
		now.Add(-1 * time.Hour),
	}}

	st.PruneRecentPosts(now)
	require.Len(t, st.RecentPosts, 1)
	assert.Equal(t, now.Add(-1*time.Hour), st.RecentPosts[0])
}
