package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// erroringBackend fails every operation with a fixed error and counts
// how often it was consulted.
type erroringBackend struct {
	err   error
	calls int
}

var _ Backend = (*erroringBackend)(nil)

func (e *erroringBackend) Name() string { return "erroring" }

func (e *erroringBackend) Get(context.Context, string) ([]byte, error) {
	e.calls++
	return nil, fmt.Errorf("get: %w", e.err)
}

func (e *erroringBackend) Put(context.Context, string, []byte) error {
	e.calls++
	return fmt.Errorf("put: %w", e.err)
}

func (e *erroringBackend) List(context.Context, string) ([]string, error) {
	e.calls++
	return nil, fmt.Errorf("list: %w", e.err)
}

func (e *erroringBackend) Delete(context.Context, string) error {
	e.calls++
	return fmt.Errorf("delete: %w", e.err)
}

func TestFailoverSwitchesOnQuotaExceeded(t *testing.T) {
	primary := &erroringBackend{err: ErrQuotaExceeded}
	standby := NewMemoryBackend()
	backend := NewFailoverBackend(primary, standby, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "state/bot.json", []byte("v1")))

	data, err := backend.Get(ctx, "state/bot.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
	assert.Equal(t, "memory", backend.Name())

	// Once flipped, the primary is never consulted again.
	callsAfterSwitch := primary.calls
	require.NoError(t, backend.Put(ctx, "posts/seen.json", []byte("{}")))
	_, err = backend.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, callsAfterSwitch, primary.calls)
}

func TestFailoverIgnoresOtherErrors(t *testing.T) {
	primary := &erroringBackend{err: ErrAuth}
	standby := NewMemoryBackend()
	backend := NewFailoverBackend(primary, standby, zap.NewNop())
	ctx := context.Background()

	err := backend.Put(ctx, "state/bot.json", []byte("v1"))
	assert.ErrorIs(t, err, ErrAuth)

	// The primary stays active for non-quota failures.
	_, err = backend.Get(ctx, "state/bot.json")
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 2, primary.calls)
}

func TestFailoverNotFoundPassesThrough(t *testing.T) {
	backend := NewFailoverBackend(NewMemoryBackend(), NewMemoryBackend(), zap.NewNop())

	_, err := backend.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
