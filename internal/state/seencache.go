package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flashbot/internal/storage"
)

const seenKey = "posts/seen.json"

// SeenStatus records how a post was accounted for.
type SeenStatus string

const (
	SeenIgnored   SeenStatus = "ignored"
	SeenResponded SeenStatus = "responded"
	SeenRejected  SeenStatus = "rejected"
)

type seenEntry struct {
	Status   SeenStatus `json:"status"`
	MarkedAt time.Time  `json:"marked_at"`
}

// SeenCache tracks which forum posts have already been handled, making
// re-runs idempotent. The whole mapping lives in one storage record;
// thread volume is modest enough for that. When disabled, every post is
// treated as unseen each cycle.
type SeenCache struct {
	backend  storage.Backend
	disabled bool
	logger   *zap.Logger
}

func NewSeenCache(backend storage.Backend, disabled bool, logger *zap.Logger) *SeenCache {
	if disabled {
		logger.Warn("seen cache is disabled: every post will be treated as unseen each cycle")
	}
	return &SeenCache{backend: backend, disabled: disabled, logger: logger}
}

func (c *SeenCache) load(ctx context.Context) (map[string]seenEntry, error) {
	data, err := c.backend.Get(ctx, seenKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return map[string]seenEntry{}, nil
		}
		return nil, fmt.Errorf("failed to load seen cache: %w", err)
	}
	entries := map[string]seenEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode seen cache: %w", err)
	}
	return entries, nil
}

func (c *SeenCache) save(ctx context.Context, entries map[string]seenEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode seen cache: %w", err)
	}
	if err := c.backend.Put(ctx, seenKey, data); err != nil {
		return fmt.Errorf("failed to save seen cache: %w", err)
	}
	return nil
}

// IsSeen reports whether the post has already been handled.
func (c *SeenCache) IsSeen(ctx context.Context, postID string) (bool, error) {
	if c.disabled {
		return false, nil
	}
	entries, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := entries[postID]
	return ok, nil
}

// Status returns the recorded status for a post, or "" when unseen.
func (c *SeenCache) Status(ctx context.Context, postID string) (SeenStatus, error) {
	if c.disabled {
		return "", nil
	}
	entries, err := c.load(ctx)
	if err != nil {
		return "", err
	}
	return entries[postID].Status, nil
}

// Snapshot returns the current post → status mapping in one read.
func (c *SeenCache) Snapshot(ctx context.Context) (map[string]SeenStatus, error) {
	if c.disabled {
		return map[string]SeenStatus{}, nil
	}
	entries, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]SeenStatus, len(entries))
	for id, e := range entries {
		statuses[id] = e.Status
	}
	return statuses, nil
}

// Mark records a status for a post. Responded is terminal: once a post
// is marked responded it stays responded. Re-marking with the same
// status only refreshes the timestamp.
func (c *SeenCache) Mark(ctx context.Context, postID string, status SeenStatus) error {
	if c.disabled {
		return nil
	}
	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	if cur, ok := entries[postID]; ok && cur.Status == SeenResponded && status != SeenResponded {
		c.logger.Debug("refusing to downgrade responded post",
			zap.String("post_id", postID), zap.String("to", string(status)))
		return nil
	}
	entries[postID] = seenEntry{Status: status, MarkedAt: time.Now().UTC()}
	return c.save(ctx, entries)
}

// Prune drops entries marked before the cutoff to bound the record's
// size. Responded entries survive pruning so a re-returned post can
// never be answered twice.
func (c *SeenCache) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	if c.disabled {
		return 0, nil
	}
	entries, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for id, e := range entries {
		if e.Status != SeenResponded && e.MarkedAt.Before(olderThan) {
			delete(entries, id)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	if err := c.save(ctx, entries); err != nil {
		return 0, err
	}
	c.logger.Info("pruned seen cache", zap.Int("removed", pruned))
	return pruned, nil
}
