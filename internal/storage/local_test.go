package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = backend.Get(ctx, "state/bot.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.Put(ctx, "state/bot.json", []byte(`{"version":1}`)))

	data, err := backend.Get(ctx, "state/bot.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":1}`), data)

	require.NoError(t, backend.Put(ctx, "state/bot.json", []byte(`{"version":2}`)))
	data, err = backend.Get(ctx, "state/bot.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":2}`), data)

	require.NoError(t, backend.Delete(ctx, "state/bot.json"))
	assert.ErrorIs(t, backend.Delete(ctx, "state/bot.json"), ErrNotFound)
}

func TestLocalBackendListPrefix(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "approvals/b.json", []byte("b")))
	require.NoError(t, backend.Put(ctx, "approvals/a.json", []byte("a")))
	require.NoError(t, backend.Put(ctx, "state/bot.json", []byte("s")))

	keys, err := backend.List(ctx, "approvals/")
	require.NoError(t, err)
	assert.Equal(t, []string{"approvals/a.json", "approvals/b.json"}, keys)

	keys, err = backend.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
