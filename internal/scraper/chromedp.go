package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"flashbot/internal/models"
)

// extractPostsJS pulls every post on the current thread page into a
// JSON-friendly shape. Quote blocks are separated from the post body so
// the bot can tell who was answered.
const extractPostsJS = `
(() => {
	const posts = [];
	document.querySelectorAll('div.post').forEach(el => {
		const id = el.id ? el.id.replace(/^post/, '') : '';
		const author = el.querySelector('.post-user-username')?.textContent.trim() ?? '';
		const body = el.querySelector('.post_message');
		if (!id || !body) return;
		const quotedAuthors = [];
		const quotedTexts = [];
		body.querySelectorAll('.post-bbcode-quote-wrapper').forEach(q => {
			const who = q.querySelector('strong')?.textContent.trim() ?? '';
			quotedAuthors.push(who);
			const txt = q.querySelector('.post-bbcode-quote')?.textContent.trim() ?? '';
			quotedTexts.push(txt);
			q.remove();
		});
		posts.push({
			id: id,
			author: author,
			text: body.textContent.trim(),
			quoted_authors: quotedAuthors,
			quoted_texts: quotedTexts,
		});
	});
	return JSON.stringify(posts);
})()`

// ChromeScraper drives a headless browser against the forum. It is the
// one component allowed to know what the thread's HTML looks like.
type ChromeScraper struct {
	ctx        context.Context
	cancel     context.CancelFunc
	username   string
	password   string
	baseURL    string // site root, derived from the thread URL
	userAgents []string
	logger     *zap.Logger
	loggedIn   bool
}

var _ Scraper = (*ChromeScraper)(nil)

type Config struct {
	Headless   bool
	ForumURL   string
	Username   string
	Password   string
	UserAgents []string
}

func NewChromeScraper(cfg Config, logger *zap.Logger) (*ChromeScraper, error) {
	u, err := url.Parse(cfg.ForumURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid forum URL %q", cfg.ForumURL)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if len(cfg.UserAgents) > 0 {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgents[rand.Intn(len(cfg.UserAgents))]))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	return &ChromeScraper{
		ctx: ctx,
		cancel: func() {
			cancelCtx()
			cancelAlloc()
		},
		username:   cfg.Username,
		password:   cfg.Password,
		baseURL:    u.Scheme + "://" + u.Host,
		userAgents: cfg.UserAgents,
		logger:     logger,
	}, nil
}

// Close closes the browser and releases resources.
func (s *ChromeScraper) Close() { s.cancel() }

func (s *ChromeScraper) Login(ctx context.Context) error {
	if s.loggedIn {
		return nil
	}
	runCtx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(s.baseURL+"/login.php"),
		chromedp.WaitVisible(`input[name="vb_login_username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="vb_login_username"]`, s.username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="vb_login_password"]`, s.password, chromedp.ByQuery),
		chromedp.Click(`input[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitVisible(`a[href*="logout"]`, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("forum login failed: %w", err)
	}
	s.loggedIn = true
	s.logger.Info("logged in to forum", zap.String("username", s.username))
	return nil
}

func (s *ChromeScraper) FetchNewPosts(ctx context.Context, threadURL string) ([]models.ForumPost, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	var raw string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(threadURL),
		chromedp.WaitVisible(`div.post`, chromedp.ByQuery),
		chromedp.Evaluate(extractPostsJS, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape thread: %w", err)
	}

	var posts []models.ForumPost
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		return nil, fmt.Errorf("failed to decode scraped posts: %w", err)
	}
	now := time.Now().UTC()
	for i := range posts {
		posts[i].Timestamp = now
	}
	s.logger.Info("scraped thread", zap.String("url", threadURL), zap.Int("posts", len(posts)))
	return posts, nil
}

func (s *ChromeScraper) PostReply(ctx context.Context, threadURL, quotePostID, text string) error {
	if !s.loggedIn {
		return fmt.Errorf("not logged in")
	}
	runCtx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	replyURL := fmt.Sprintf("%s/newreply.php?do=newreply&p=%s", s.baseURL, quotePostID)

	// The reply textarea is filled through JS: the driver's key events
	// choke on characters outside the basic multilingual plane.
	err := chromedp.Run(runCtx,
		chromedp.Navigate(replyURL),
		chromedp.WaitVisible(`#vB_Editor_001_textarea`, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`(() => { const ta = document.querySelector('#vB_Editor_001_textarea'); ta.value = ta.value + %s; })()`,
			jsString(text)), nil),
		chromedp.Click(`#vB_Editor_001_save`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to submit reply: %w", err)
	}
	s.logger.Info("reply posted", zap.String("quote_post_id", quotePostID))
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
