package storage

import (
	"context"
	"errors"
)

// Sentinel errors shared by every backend. Callers match with errors.Is.
var (
	// ErrNotFound is returned by Get and Delete when the key does not exist.
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded is returned once a request-limited backend has spent
	// its budget. It signals the caller to fail over, not to retry.
	ErrQuotaExceeded = errors.New("storage: request budget exceeded")
	// ErrAuth is returned when the backend's credentials are invalid or a
	// token refresh failed. Fatal for the cycle, not for the process.
	ErrAuth = errors.New("storage: authentication failed")
)

// Backend is the uniform contract over named byte blobs. Keys use a
// single "/"-separated logical namespace; how a backend maps them to
// file paths, S3 keys or Dropbox paths is its own business. Operations
// are atomic at single-key granularity: a reader never observes a
// partial write.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
