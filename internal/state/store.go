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

const stateKey = "state/bot.json"

// ErrVersionConflict is returned by Save when the stored record changed
// since the caller's Load. The caller must reload and redo its mutation.
var ErrVersionConflict = errors.New("state: record changed since load")

// BotState is the single mutable record the bot persists across runs.
// Callers follow load, mutate, save; Save refuses to overwrite a record
// written by someone else in between.
type BotState struct {
	Version            int64     `json:"version"`
	TimeOfLastResponse time.Time `json:"time_of_last_response"`
	TimeOfLastPost     time.Time `json:"time_of_last_post"`
	PostLock           bool      `json:"post_lock"`
	PostLockAt         time.Time `json:"post_lock_at"`

	// LastObservedPostID is the newest post seen by the previous scrape,
	// the high-water mark for telling new arrivals from re-returned posts.
	LastObservedPostID string `json:"last_observed_post_id,omitempty"`

	ScrapeTimeoutSeconds int64 `json:"scrape_timeout_seconds"`
	RandomSleepMin       int64 `json:"random_sleep_time_min_minutes"`
	RandomSleepMax       int64 `json:"random_sleep_time_max_minutes"`
	RandomSleepEnabled   bool  `json:"random_sleep_enabled"`

	// RecentPosts holds the timestamps of posts made in the last 24
	// hours, oldest first. Used for the posting throttle.
	RecentPosts []time.Time `json:"recent_posts,omitempty"`
}

// ScrapeTimeout returns the staleness bound for fetched posts.
func (s BotState) ScrapeTimeout() time.Duration {
	return time.Duration(s.ScrapeTimeoutSeconds) * time.Second
}

// PostsWithin counts recent posts newer than now minus the window.
func (s BotState) PostsWithin(window time.Duration, now time.Time) int {
	n := 0
	for _, t := range s.RecentPosts {
		if now.Sub(t) < window {
			n++
		}
	}
	return n
}

// PruneRecentPosts drops post timestamps older than 24 hours.
func (s *BotState) PruneRecentPosts(now time.Time) {
	kept := s.RecentPosts[:0]
	for _, t := range s.RecentPosts {
		if now.Sub(t) < 24*time.Hour {
			kept = append(kept, t)
		}
	}
	s.RecentPosts = kept
}

// Defaults seeds a fresh record when none is stored yet.
type Defaults struct {
	ScrapeTimeoutSeconds int64
	RandomSleepMin       int64
	RandomSleepMax       int64
	RandomSleepEnabled   bool
}

// Store persists BotState through a storage backend with a version
// check on write. It is the compare-and-swap substitute that keeps two
// overlapping invocations from corrupting the record.
type Store struct {
	backend  storage.Backend
	defaults Defaults
	logger   *zap.Logger
}

func NewStore(backend storage.Backend, defaults Defaults, logger *zap.Logger) *Store {
	return &Store{backend: backend, defaults: defaults, logger: logger}
}

// Load returns the stored state, or a fresh default record at version 0
// when nothing is stored yet.
func (s *Store) Load(ctx context.Context) (BotState, error) {
	data, err := s.backend.Get(ctx, stateKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("no bot state stored yet, starting fresh")
			return BotState{
				ScrapeTimeoutSeconds: s.defaults.ScrapeTimeoutSeconds,
				RandomSleepMin:       s.defaults.RandomSleepMin,
				RandomSleepMax:       s.defaults.RandomSleepMax,
				RandomSleepEnabled:   s.defaults.RandomSleepEnabled,
			}, nil
		}
		return BotState{}, fmt.Errorf("failed to load bot state: %w", err)
	}
	var st BotState
	if err := json.Unmarshal(data, &st); err != nil {
		return BotState{}, fmt.Errorf("failed to decode bot state: %w", err)
	}
	return st, nil
}

// Save writes the mutated state and returns it with the bumped version,
// so the caller can keep mutating and saving within one cycle. It fails
// with ErrVersionConflict when the stored version no longer matches the
// version the caller loaded.
func (s *Store) Save(ctx context.Context, st BotState) (BotState, error) {
	stored, err := s.Load(ctx)
	if err != nil {
		return st, err
	}
	if stored.Version != st.Version {
		return st, fmt.Errorf("%w: stored version %d, loaded version %d",
			ErrVersionConflict, stored.Version, st.Version)
	}
	st.Version++
	data, err := json.Marshal(st)
	if err != nil {
		return st, fmt.Errorf("failed to encode bot state: %w", err)
	}
	if err := s.backend.Put(ctx, stateKey, data); err != nil {
		return st, fmt.Errorf("failed to save bot state: %w", err)
	}
	return st, nil
}
