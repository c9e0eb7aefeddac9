package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashbot/internal/models"
	"flashbot/internal/state"
)

const botUsername = "botuser"

func testEngine(t *testing.T, reselectRejected bool) *Engine {
	t.Helper()
	filters, err := NewFilters(nil, []string{"[ Visa mer ]"})
	require.NoError(t, err)
	return NewEngine(botUsername, reselectRejected, filters, zap.NewNop())
}

func freshState() state.BotState {
	return state.BotState{ScrapeTimeoutSeconds: 30}
}

func post(id, author string, quoted ...string) models.ForumPost {
	return models.ForumPost{ID: id, Author: author, Text: "text " + id, QuotedAuthors: quoted}
}

func TestSelectOldestUnseen(t *testing.T) {
	engine := testEngine(t, false)
	now := time.Now().UTC()

	posts := []models.ForumPost{post("p1", "alice"), post("p2", "bob"), post("p3", "carol")}
	seen := map[string]state.SeenStatus{"p1": state.SeenResponded}

	d := engine.Select(posts, freshState(), seen, now, now)
	require.True(t, d.Respond)
	assert.Equal(t, "p2", d.Post.ID)
}

func TestSelectPrefersPostQuotingBot(t *testing.T) {
	engine := testEngine(t, false)
	now := time.Now().UTC()

	posts := []models.ForumPost{
		post("p1", "alice"),
		post("p2", "bob", botUsername),
		post("p3", "carol", botUsername),
	}

	d := engine.Select(posts, freshState(), nil, now, now)
	require.True(t, d.Respond)
	assert.Equal(t, "p2", d.Post.ID)
}

func TestSelectSkipsOwnPosts(t *testing.T) {
	engine := testEngine(t, false)
	now := time.Now().UTC()

	posts := []models.ForumPost{post("p1", botUsername)}

	d := engine.Select(posts, freshState(), nil, now, now)
	assert.False(t, d.Respond)
	assert.Equal(t, ReasonNoNewPosts, d.Reason)
}

func TestSelectStaleScrape(t *testing.T) {
	engine := testEngine(t, false)
	now := time.Now().UTC()

	posts := []models.ForumPost{post("p1", "alice")}

	d := engine.Select(posts, freshState(), nil, now.Add(-31*time.Second), now)
	assert.False(t, d.Respond)
	assert.Equal(t, ReasonScrapeStale, d.Reason)
}

func TestSelectSleepWindow(t *testing.T) {
	engine := testEngine(t, false)
	now := time.Now().UTC()

	st := freshState()
	st.RandomSleepEnabled = true
	st.RandomSleepMin = 10
	st.TimeOfLastResponse = now.Add(-5 * time.Minute)

	d := engine.Select([]models.ForumPost{post("p1", "alice")}, st, nil, now, now)
	assert.False(t, d.Respond)
	assert.Equal(t, ReasonSleeping, d.Reason)

	// Past the window the engine responds again.
	st.TimeOfLastResponse = now.Add(-11 * time.Minute)
	d = engine.Select([]models.ForumPost{post("p1", "alice")}, st, nil, now, now)
	assert.True(t, d.Respond)
}

func TestSelectRejectedPosts(t *testing.T) {
	now := time.Now().UTC()
	posts := []models.ForumPost{post("p1", "alice")}
	seen := map[string]state.SeenStatus{"p1": state.SeenRejected}

	d := testEngine(t, false).Select(posts, freshState(), seen, now, now)
	assert.False(t, d.Respond)
	assert.Equal(t, ReasonNoNewPosts, d.Reason)

	d = testEngine(t, true).Select(posts, freshState(), seen, now, now)
	require.True(t, d.Respond)
	assert.Equal(t, "p1", d.Post.ID)
}

func TestSelectFiltersSelectedPost(t *testing.T) {
	engine := testEngine(t, false)
	now := time.Now().UTC()

	p := post("p1", "alice")
	p.Text = "hello [ Visa mer ] world"
	p.QuotedTexts = []string{"quoted [ Visa mer ] text"}

	batch := []models.ForumPost{p}
	d := engine.Select(batch, freshState(), nil, now, now)
	require.True(t, d.Respond)
	assert.Equal(t, "hello  world", d.Post.Text)
	assert.Equal(t, []string{"quoted  text"}, d.Post.QuotedTexts)

	// Filtering works on a copy; the scraped batch is left as fetched.
	assert.Equal(t, "hello [ Visa mer ] world", batch[0].Text)
	assert.Equal(t, []string{"quoted [ Visa mer ] text"}, batch[0].QuotedTexts)
}
