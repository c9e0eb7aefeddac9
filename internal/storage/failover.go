package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// FailoverBackend serves from a primary backend until it reports
// ErrQuotaExceeded, then switches to the standby for the remaining
// lifetime of the process. The switch is one-directional: once flipped,
// no request ever goes back to the primary.
type FailoverBackend struct {
	primary  Backend
	standby  Backend
	logger   *zap.Logger
	switched atomic.Bool
	logOnce  sync.Once
}

var _ Backend = (*FailoverBackend)(nil)

func NewFailoverBackend(primary, standby Backend, logger *zap.Logger) *FailoverBackend {
	return &FailoverBackend{primary: primary, standby: standby, logger: logger}
}

func (f *FailoverBackend) Name() string {
	return f.active().Name()
}

func (f *FailoverBackend) active() Backend {
	if f.switched.Load() {
		return f.standby
	}
	return f.primary
}

// failOver flips to the standby and reports whether the caller should
// retry there.
func (f *FailoverBackend) failOver(err error) bool {
	if !errors.Is(err, ErrQuotaExceeded) {
		return false
	}
	f.switched.Store(true)
	f.logOnce.Do(func() {
		f.logger.Warn("storage backend failed over for the rest of the process",
			zap.String("from", f.primary.Name()),
			zap.String("to", f.standby.Name()),
			zap.Error(err))
	})
	return true
}

func (f *FailoverBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := f.active().Get(ctx, key)
	if err != nil && f.failOver(err) {
		return f.standby.Get(ctx, key)
	}
	return data, err
}

func (f *FailoverBackend) Put(ctx context.Context, key string, data []byte) error {
	err := f.active().Put(ctx, key, data)
	if err != nil && f.failOver(err) {
		return f.standby.Put(ctx, key, data)
	}
	return err
}

func (f *FailoverBackend) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := f.active().List(ctx, prefix)
	if err != nil && f.failOver(err) {
		return f.standby.List(ctx, prefix)
	}
	return keys, err
}

// Close flushes whichever wrapped backend keeps shutdown state.
func (f *FailoverBackend) Close(ctx context.Context) {
	if c, ok := f.primary.(interface{ Close(context.Context) }); ok {
		c.Close(ctx)
	}
}

func (f *FailoverBackend) Delete(ctx context.Context, key string) error {
	err := f.active().Delete(ctx, key)
	if err != nil && f.failOver(err) {
		return f.standby.Delete(ctx, key)
	}
	return err
}
