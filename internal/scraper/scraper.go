package scraper

import (
	"context"

	"flashbot/internal/models"
)

// Scraper is the browser automation the orchestrator consumes. Errors
// from any method are treated as transient by the caller: the cycle is
// abandoned and retried on the next run.
type Scraper interface {
	// Login establishes a forum session, restoring a previous one when
	// possible.
	Login(ctx context.Context) error
	// FetchNewPosts returns the thread's posts in forum order, oldest
	// first. The caller filters already-seen posts itself.
	FetchNewPosts(ctx context.Context, threadURL string) ([]models.ForumPost, error)
	// PostReply submits a reply quoting the given post.
	PostReply(ctx context.Context, threadURL, quotePostID, text string) error
	Close()
}
