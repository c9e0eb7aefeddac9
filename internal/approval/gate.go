package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flashbot/internal/models"
	"flashbot/internal/notifier"
	"flashbot/internal/storage"
)

const requestPrefix = "approvals/"

// Gate routes generated candidates through human approval. Requests are
// persisted before dispatch so a crash between dispatch and decision
// can be resumed, and polled until a terminal status or the timeout.
type Gate struct {
	backend      storage.Backend
	notifier     notifier.Notifier
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewGate(backend storage.Backend, n notifier.Notifier, timeout, pollInterval time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		backend:      backend,
		notifier:     n,
		timeout:      timeout,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func requestKey(id string) string { return requestPrefix + id + ".json" }

// Request persists a pending ApprovalRequest for the candidate and
// dispatches its preview through the notifier.
func (g *Gate) Request(ctx context.Context, cand models.CandidateResponse) (models.ApprovalRequest, error) {
	req := models.ApprovalRequest{
		ID:        uuid.NewString(),
		Candidate: cand,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.save(ctx, req); err != nil {
		return models.ApprovalRequest{}, err
	}
	preview := fmt.Sprintf("Reply to post %s:\n\n%s", cand.SourcePostID, cand.FilteredText)
	if err := g.notifier.Push(ctx, req.ID, preview); err != nil {
		// The persisted request stays pending; Resume will re-dispatch
		// it on the next run.
		return models.ApprovalRequest{}, fmt.Errorf("failed to dispatch approval request: %w", err)
	}
	g.logger.Info("approval requested",
		zap.String("request_id", req.ID),
		zap.String("source_post_id", cand.SourcePostID))
	return req, nil
}

// Await polls the notifier until the request reaches a terminal status.
// A request still pending when its timeout elapses becomes expired. The
// final status is persisted before Await returns.
func (g *Gate) Await(ctx context.Context, req models.ApprovalRequest) (models.ApprovalStatus, error) {
	deadline := req.CreatedAt.Add(g.timeout)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		status, err := g.Poll(ctx, req.ID)
		if err != nil {
			return models.StatusPending, err
		}
		if status.Terminal() {
			return status, nil
		}
		if time.Now().After(deadline) {
			return g.expire(ctx, req)
		}
		select {
		case <-ctx.Done():
			return models.StatusPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll checks the notifier for a decision on the request and persists
// any transition it observes. It is the only way a transition is seen.
func (g *Gate) Poll(ctx context.Context, requestID string) (models.ApprovalStatus, error) {
	req, err := g.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	if req.Status.Terminal() {
		return req.Status, nil
	}

	approved, rejected, err := g.notifier.Decisions(ctx)
	if err != nil {
		return models.StatusPending, fmt.Errorf("failed to poll decisions: %w", err)
	}
	for _, id := range approved {
		if err := g.transition(ctx, id, models.StatusApproved); err != nil {
			g.logger.Warn("failed to record approval", zap.String("request_id", id), zap.Error(err))
		}
	}
	for _, id := range rejected {
		if err := g.transition(ctx, id, models.StatusRejected); err != nil {
			g.logger.Warn("failed to record rejection", zap.String("request_id", id), zap.Error(err))
		}
	}

	req, err = g.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// Resume returns the requests persisted by a previous run, in creation
// order: pending ones to poll again, and terminal ones whose outcome
// was never applied.
func (g *Gate) Resume(ctx context.Context) ([]models.ApprovalRequest, error) {
	keys, err := g.backend.List(ctx, requestPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	var reqs []models.ApprovalRequest
	for _, key := range keys {
		data, err := g.backend.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load approval request %s: %w", key, err)
		}
		var req models.ApprovalRequest
		if err := json.Unmarshal(data, &req); err != nil {
			g.logger.Warn("skipping undecodable approval request", zap.String("key", key), zap.Error(err))
			continue
		}
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
	if len(reqs) > 0 {
		g.logger.Info("resuming persisted approval requests", zap.Int("count", len(reqs)))
	}
	return reqs, nil
}

// Remove deletes a terminal request after its outcome has been applied.
func (g *Gate) Remove(ctx context.Context, requestID string) error {
	if err := g.notifier.Delete(ctx, requestID); err != nil {
		g.logger.Debug("failed to withdraw notification", zap.String("request_id", requestID), zap.Error(err))
	}
	if err := g.backend.Delete(ctx, requestKey(requestID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to remove approval request: %w", err)
	}
	return nil
}

func (g *Gate) Get(ctx context.Context, requestID string) (models.ApprovalRequest, error) {
	data, err := g.backend.Get(ctx, requestKey(requestID))
	if err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to load approval request %s: %w", requestID, err)
	}
	var req models.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to decode approval request %s: %w", requestID, err)
	}
	return req, nil
}

func (g *Gate) save(ctx context.Context, req models.ApprovalRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode approval request: %w", err)
	}
	if err := g.backend.Put(ctx, requestKey(req.ID), data); err != nil {
		return fmt.Errorf("failed to persist approval request: %w", err)
	}
	return nil
}

// transition moves a pending request to a terminal status. Decisions
// for unknown or already-terminal requests are dropped.
func (g *Gate) transition(ctx context.Context, requestID string, status models.ApprovalStatus) error {
	req, err := g.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if req.Status.Terminal() {
		return nil
	}
	req.Status = status
	if err := g.save(ctx, req); err != nil {
		return err
	}
	g.logger.Info("approval request transitioned",
		zap.String("request_id", requestID), zap.String("status", string(status)))
	return nil
}

func (g *Gate) expire(ctx context.Context, req models.ApprovalRequest) (models.ApprovalStatus, error) {
	if err := g.transition(ctx, req.ID, models.StatusExpired); err != nil {
		return models.StatusPending, err
	}
	g.logger.Warn("approval request expired",
		zap.String("request_id", req.ID),
		zap.Duration("timeout", g.timeout))
	return models.StatusExpired, nil
}
