package decision

import (
	"time"

	"go.uber.org/zap"

	"flashbot/internal/models"
	"flashbot/internal/state"
)

// Idle reasons reported when the engine decides not to respond.
const (
	ReasonNoNewPosts  = "no-new-posts"
	ReasonScrapeStale = "scrape-stale"
	ReasonSleeping    = "sleeping"
)

// Decision is the outcome of one selection pass: either respond to a
// specific post or idle with a reason.
type Decision struct {
	Respond bool
	Post    models.ForumPost
	Reason  string
}

func respondTo(post models.ForumPost) Decision {
	return Decision{Respond: true, Post: post}
}

func idle(reason string) Decision {
	return Decision{Reason: reason}
}

// Engine selects which post, if any, to answer. Selection is
// deterministic: among unseen posts it prefers the oldest one that
// quotes the bot, then the oldest unseen overall, never the newest.
type Engine struct {
	username         string
	reselectRejected bool
	filters          *Filters
	logger           *zap.Logger
}

func NewEngine(username string, reselectRejected bool, filters *Filters, logger *zap.Logger) *Engine {
	return &Engine{
		username:         username,
		reselectRejected: reselectRejected,
		filters:          filters,
		logger:           logger,
	}
}

// Filters exposes the phrase filters so the same rules are applied to
// generated candidates before approval.
func (e *Engine) Filters() *Filters { return e.filters }

// Select decides what to do with a freshly scraped batch. Posts must be
// in forum order, oldest first. fetchedAt is when the batch was scraped;
// results older than the state's scrape timeout are discarded.
func (e *Engine) Select(posts []models.ForumPost, st state.BotState, seen map[string]state.SeenStatus, fetchedAt, now time.Time) Decision {
	if now.Sub(fetchedAt) > st.ScrapeTimeout() {
		e.logger.Warn("scrape results are stale, discarding",
			zap.Duration("age", now.Sub(fetchedAt)),
			zap.Duration("timeout", st.ScrapeTimeout()))
		return idle(ReasonScrapeStale)
	}

	if st.RandomSleepEnabled && !st.TimeOfLastResponse.IsZero() {
		window := time.Duration(st.RandomSleepMin) * time.Minute
		if since := now.Sub(st.TimeOfLastResponse); since < window {
			e.logger.Info("inside sleep window, not responding yet",
				zap.Duration("since_last_response", since),
				zap.Duration("window", window))
			return idle(ReasonSleeping)
		}
	}

	eligible := make([]models.ForumPost, 0, len(posts))
	for _, p := range posts {
		if p.Author == e.username {
			continue
		}
		if e.isSeen(seen[p.ID]) {
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		return idle(ReasonNoNewPosts)
	}

	// Answer the bot's answerers first, in forum order.
	for _, p := range eligible {
		if p.Quotes(e.username) {
			e.logger.Info("selected post quoting the bot", zap.String("post_id", p.ID))
			return respondTo(e.filterPost(p))
		}
	}

	p := eligible[0]
	e.logger.Info("selected oldest unseen post",
		zap.String("post_id", p.ID), zap.Int("eligible", len(eligible)))
	return respondTo(e.filterPost(p))
}

func (e *Engine) isSeen(status state.SeenStatus) bool {
	switch status {
	case "":
		return false
	case state.SeenRejected:
		return !e.reselectRejected
	default:
		return true
	}
}

func (e *Engine) filterPost(p models.ForumPost) models.ForumPost {
	p.Text = e.filters.Apply(p.Text)
	if len(p.QuotedTexts) > 0 {
		// Copy before filtering so the scraped batch stays untouched.
		quoted := make([]string, len(p.QuotedTexts))
		for i, q := range p.QuotedTexts {
			quoted[i] = e.filters.Apply(q)
		}
		p.QuotedTexts = quoted
	}
	return p
}
