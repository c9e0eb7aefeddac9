package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"flashbot/internal/approval"
	"flashbot/internal/config"
	"flashbot/internal/decision"
	"flashbot/internal/generator"
	"flashbot/internal/models"
	"flashbot/internal/scraper"
	"flashbot/internal/state"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomePosted Outcome = "posted"
	OutcomeIdle   Outcome = "idle"
	OutcomeError  Outcome = "error"
)

// Idle reasons produced by the orchestrator itself, on top of the
// decision engine's.
const (
	ReasonLocked           = "locked"
	ReasonPostThrottled    = "post-throttled"
	ReasonWaitingToPost    = "waiting-between-posts"
	ReasonApprovalRejected = "approval-rejected"
	ReasonApprovalExpired  = "approval-expired"
)

// CycleResult is what one pass of the loop reports.
type CycleResult struct {
	Outcome      Outcome `json:"outcome"`
	Reason       string  `json:"reason,omitempty"`
	NewPosts     int     `json:"new_posts"`
	PostedPostID string  `json:"posted_post_id,omitempty"`
	RequestID    string  `json:"request_id,omitempty"`
	DryRun       bool    `json:"dry_run,omitempty"`
}

func idleResult(reason string) CycleResult {
	return CycleResult{Outcome: OutcomeIdle, Reason: reason}
}

func errorResult(reason string) CycleResult {
	return CycleResult{Outcome: OutcomeError, Reason: reason}
}

// Orchestrator wires scraping, deciding, generating, approving and
// posting into one cycle, and owns the post lock that keeps overlapping
// invocations from double-posting.
type Orchestrator struct {
	cfg       *config.Config
	store     *state.Store
	seen      *state.SeenCache
	engine    *decision.Engine
	gate      *approval.Gate
	scraper   scraper.Scraper
	generator generator.Generator
	genCfg    generator.GenerationConfig
	logger    *zap.Logger

	mu sync.Mutex // one cycle at a time within this process
}

func NewOrchestrator(
	cfg *config.Config,
	store *state.Store,
	seen *state.SeenCache,
	engine *decision.Engine,
	gate *approval.Gate,
	scr scraper.Scraper,
	gen generator.Generator,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		seen:      seen,
		engine:    engine,
		gate:      gate,
		scraper:   scr,
		generator: gen,
		genCfg:    generator.ConfigFromSettings(cfg),
		logger:    logger,
	}
}

func (o *Orchestrator) lockGrace() time.Duration {
	return time.Duration(o.cfg.Orchestrator.LockGraceMinutes) * time.Minute
}

func (o *Orchestrator) minPostGap() time.Duration {
	return time.Duration(o.cfg.Decision.MinPostGapMinutes) * time.Minute
}

// RunOnce executes one full cycle. A state version conflict retries the
// whole cycle once before surfacing.
func (o *Orchestrator) RunOnce(ctx context.Context, testMode bool) (CycleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runLocked(ctx, testMode)
}

// TryRunOnce is RunOnce for ad-hoc triggers: it refuses with ErrBusy
// instead of queueing behind a cycle already in flight.
func (o *Orchestrator) TryRunOnce(ctx context.Context, testMode bool) (CycleResult, error) {
	if !o.mu.TryLock() {
		return errorResult("busy"), ErrBusy
	}
	defer o.mu.Unlock()
	return o.runLocked(ctx, testMode)
}

func (o *Orchestrator) runLocked(ctx context.Context, testMode bool) (CycleResult, error) {
	res, err := o.cycle(ctx, testMode)
	if err != nil && errors.Is(err, state.ErrVersionConflict) {
		o.logger.Warn("state changed under the cycle, retrying once", zap.Error(err))
		res, err = o.cycle(ctx, testMode)
	}
	if err != nil {
		o.logger.Error("cycle failed",
			zap.String("reason", res.Reason), zap.Error(err))
	} else {
		o.logger.Info("cycle finished",
			zap.String("outcome", string(res.Outcome)),
			zap.String("reason", res.Reason),
			zap.Int("new_posts", res.NewPosts),
			zap.Bool("dry_run", res.DryRun))
	}
	return res, err
}

func (o *Orchestrator) cycle(ctx context.Context, testMode bool) (CycleResult, error) {
	now := time.Now().UTC()

	st, err := o.store.Load(ctx)
	if err != nil {
		return errorResult("state-load-failed"), err
	}

	// A lock found already held belongs to a cycle in flight, or to one
	// that died. Past the grace period it is reclaimed; inside it, back
	// off rather than risk a double post.
	if st.PostLock {
		age := now.Sub(st.PostLockAt)
		if age <= o.lockGrace() {
			o.logger.Info("post lock is held, idling this cycle",
				zap.Duration("age", age))
			return idleResult(ReasonLocked), nil
		}
		o.logger.Warn("clearing stale post lock",
			zap.Duration("age", age), zap.Duration("grace", o.lockGrace()))
		st.PostLock = false
		st.PostLockAt = time.Time{}
		if st, err = o.store.Save(ctx, st); err != nil {
			return errorResult("lock-recovery-failed"), err
		}
	}

	// Requests persisted by a previous run come first: a crash between
	// dispatch and decision must not lose the human's answer.
	resumed, err := o.gate.Resume(ctx)
	if err != nil {
		return errorResult("approval-resume-failed"), fmt.Errorf("%w: %v", ErrTransient, err)
	}
	for _, req := range resumed {
		res, st2, err := o.finishApproval(ctx, st, req, testMode)
		st = st2
		if err != nil || res.Outcome == OutcomePosted {
			return res, err
		}
	}

	posts, err := o.scraper.FetchNewPosts(ctx, o.cfg.Thread.URL)
	if err != nil {
		return errorResult("scrape-failed"), fmt.Errorf("%w: %v", ErrTransient, err)
	}
	fetchedAt := time.Now().UTC()

	seen, err := o.seen.Snapshot(ctx)
	if err != nil {
		return errorResult("seen-cache-failed"), err
	}

	// Posts past the previous scrape's high-water mark are new arrivals.
	// A new arrival quoting the bot counts as a received answer and
	// restarts the human-like response delay; re-returned posts do not,
	// or the delay would never elapse.
	dirty := false
	if len(posts) > 0 {
		for _, p := range postsAfter(posts, st.LastObservedPostID) {
			if p.Quotes(o.cfg.Thread.Username) {
				st.TimeOfLastResponse = time.Now().UTC()
				dirty = true
				break
			}
		}
		if last := posts[len(posts)-1].ID; last != st.LastObservedPostID {
			st.LastObservedPostID = last
			dirty = true
		}
	}

	d := o.engine.Select(posts, st, seen, fetchedAt, time.Now().UTC())
	if d.Reason == decision.ReasonScrapeStale {
		// Stale results are discarded wholesale, high-water mark included.
		return CycleResult{Outcome: OutcomeIdle, Reason: d.Reason, NewPosts: len(posts)}, nil
	}

	// The bot's own posts are read but never answered; mark them so they
	// age out of the cache instead of being re-scanned forever.
	if !testMode {
		for _, p := range posts {
			if p.Author != o.cfg.Thread.Username || seen[p.ID] != "" {
				continue
			}
			if err := o.seen.Mark(ctx, p.ID, state.SeenIgnored); err != nil {
				return errorResult("seen-cache-failed"), err
			}
		}
	}

	if dirty && !testMode {
		if st, err = o.store.Save(ctx, st); err != nil {
			return errorResult("state-save-failed"), err
		}
	}
	if !d.Respond {
		return CycleResult{Outcome: OutcomeIdle, Reason: d.Reason, NewPosts: len(posts)}, nil
	}

	prompt := generator.BuildPrompt(d.Post)
	raw, err := o.generator.Generate(ctx, prompt, o.genCfg)
	if err != nil {
		return errorResult("generation-failed"), fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	text := generator.CorrectOutput(generator.TrimOutput(raw))
	filtered := o.engine.Filters().Apply(text)

	cand := models.CandidateResponse{
		SourcePostID:  d.Post.ID,
		GeneratedText: raw,
		FilteredText:  filtered,
		CreatedAt:     time.Now().UTC(),
	}
	req, err := o.gate.Request(ctx, cand)
	if err != nil {
		return errorResult("approval-dispatch-failed"), fmt.Errorf("%w: %v", ErrTransient, err)
	}

	res, _, err := o.finishApproval(ctx, st, req, testMode)
	res.NewPosts = len(posts)
	return res, err
}

// postsAfter returns the posts following the given ID, or all of them
// when the ID is absent from the batch.
func postsAfter(posts []models.ForumPost, lastID string) []models.ForumPost {
	if lastID == "" {
		return posts
	}
	for i, p := range posts {
		if p.ID == lastID {
			return posts[i+1:]
		}
	}
	return posts
}

// finishApproval waits out a request's decision and applies the
// outcome. It returns the possibly-updated state so the caller can keep
// using it.
func (o *Orchestrator) finishApproval(ctx context.Context, st state.BotState, req models.ApprovalRequest, testMode bool) (CycleResult, state.BotState, error) {
	status, err := o.gate.Await(ctx, req)
	if err != nil {
		return errorResult("approval-poll-failed"), st, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	switch status {
	case models.StatusApproved:
		return o.post(ctx, st, req, testMode)

	case models.StatusRejected, models.StatusExpired:
		if !testMode {
			if err := o.seen.Mark(ctx, req.Candidate.SourcePostID, state.SeenRejected); err != nil {
				return errorResult("seen-cache-failed"), st, err
			}
		}
		if err := o.gate.Remove(ctx, req.ID); err != nil {
			o.logger.Warn("failed to clean up approval request",
				zap.String("request_id", req.ID), zap.Error(err))
		}
		reason := ReasonApprovalRejected
		if status == models.StatusExpired {
			reason = ReasonApprovalExpired
		}
		res := idleResult(reason)
		res.RequestID = req.ID
		return res, st, nil

	default:
		return idleResult("approval-pending"), st, nil
	}
}

// post performs the approved reply under the post lock. The lock is
// released on every path out, including failures.
func (o *Orchestrator) post(ctx context.Context, st state.BotState, req models.ApprovalRequest, testMode bool) (CycleResult, state.BotState, error) {
	now := time.Now().UTC()
	st.PruneRecentPosts(now)

	if n := st.PostsWithin(24*time.Hour, now); n >= o.cfg.Decision.MaxPostsPer24h {
		o.logger.Info("posting throttled",
			zap.Int("posts_in_24h", n), zap.Int("max", o.cfg.Decision.MaxPostsPer24h))
		res := idleResult(ReasonPostThrottled)
		res.RequestID = req.ID
		return res, st, nil
	}
	if !st.TimeOfLastPost.IsZero() && now.Sub(st.TimeOfLastPost) < o.minPostGap() {
		o.logger.Info("still inside the gap between posts",
			zap.Duration("since_last_post", now.Sub(st.TimeOfLastPost)),
			zap.Duration("min_gap", o.minPostGap()))
		res := idleResult(ReasonWaitingToPost)
		res.RequestID = req.ID
		return res, st, nil
	}

	if testMode {
		o.logger.Info("test mode: skipping post and state updates",
			zap.String("request_id", req.ID),
			zap.String("source_post_id", req.Candidate.SourcePostID))
		res := CycleResult{
			Outcome:      OutcomePosted,
			PostedPostID: req.Candidate.SourcePostID,
			RequestID:    req.ID,
			DryRun:       true,
		}
		return res, st, nil
	}

	st.PostLock = true
	st.PostLockAt = now
	var err error
	if st, err = o.store.Save(ctx, st); err != nil {
		return errorResult("lock-acquire-failed"), st, err
	}

	lockHeld := true
	defer func() {
		if !lockHeld {
			return
		}
		st.PostLock = false
		st.PostLockAt = time.Time{}
		if st2, err := o.store.Save(ctx, st); err != nil {
			o.logger.Error("failed to release post lock", zap.Error(err))
		} else {
			st = st2
		}
	}()

	if err := o.scraper.Login(ctx); err != nil {
		return errorResult("login-failed"), st, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if err := o.scraper.PostReply(ctx, o.cfg.Thread.URL, req.Candidate.SourcePostID, req.Candidate.FilteredText); err != nil {
		return errorResult("post-failed"), st, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if err := o.seen.Mark(ctx, req.Candidate.SourcePostID, state.SeenResponded); err != nil {
		return errorResult("seen-cache-failed"), st, err
	}
	if err := o.gate.Remove(ctx, req.ID); err != nil {
		o.logger.Warn("failed to clean up approval request",
			zap.String("request_id", req.ID), zap.Error(err))
	}

	st.TimeOfLastPost = now
	st.RecentPosts = append(st.RecentPosts, now)
	st.PostLock = false
	st.PostLockAt = time.Time{}
	lockHeld = false
	if st, err = o.store.Save(ctx, st); err != nil {
		return errorResult("state-save-failed"), st, err
	}

	o.logger.Info("reply posted",
		zap.String("source_post_id", req.Candidate.SourcePostID),
		zap.String("request_id", req.ID))
	res := CycleResult{
		Outcome:      OutcomePosted,
		PostedPostID: req.Candidate.SourcePostID,
		RequestID:    req.ID,
	}
	return res, st, nil
}

// RunContinuous drives RunOnce in a loop until the context is canceled,
// sleeping a randomized interval between cycles.
func (o *Orchestrator) RunContinuous(ctx context.Context, testMode bool) {
	for {
		if _, err := o.RunOnce(ctx, testMode); err != nil && ctx.Err() != nil {
			return
		}
		o.Prune(ctx)

		sleep := o.nextSleep()
		o.logger.Info("sleeping until next cycle", zap.Duration("sleep", sleep))
		select {
		case <-ctx.Done():
			o.logger.Info("continuous run stopped")
			return
		case <-time.After(sleep):
		}
	}
}

func (o *Orchestrator) nextSleep() time.Duration {
	if !o.cfg.Decision.RandomSleepEnabled {
		return 30 * time.Second
	}
	min := o.cfg.Decision.RandomSleepMinMinutes
	max := o.cfg.Decision.RandomSleepMaxMinutes
	minutes := min
	if max > min {
		minutes = min + rand.Int63n(max-min+1)
	}
	return time.Duration(minutes) * time.Minute
}

// SeenRetentionCutoff is the prune horizon derived from configuration.
func (o *Orchestrator) SeenRetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -o.cfg.Cache.RetentionDays)
}

// Prune trims the seen cache to its retention window. Called between
// cycles in continuous mode and once per run in single-shot mode.
func (o *Orchestrator) Prune(ctx context.Context) {
	if _, err := o.seen.Prune(ctx, o.SeenRetentionCutoff(time.Now().UTC())); err != nil {
		o.logger.Warn("seen cache prune failed", zap.Error(err))
	}
}
