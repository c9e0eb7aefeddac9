package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashbot/internal/models"
	"flashbot/internal/storage"
)

// fakeNotifier records pushes and hands back scripted decisions once.
type fakeNotifier struct {
	pushed   map[string]string
	approved []string
	rejected []string
	deleted  []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{pushed: map[string]string{}}
}

func (f *fakeNotifier) Push(_ context.Context, requestID, preview string) error {
	f.pushed[requestID] = preview
	return nil
}

func (f *fakeNotifier) Decisions(context.Context) (approved, rejected []string, err error) {
	approved, rejected = f.approved, f.rejected
	f.approved, f.rejected = nil, nil
	return approved, rejected, nil
}

func (f *fakeNotifier) Delete(_ context.Context, requestID string) error {
	f.deleted = append(f.deleted, requestID)
	return nil
}

func testGate(t *testing.T, timeout time.Duration) (*Gate, *fakeNotifier, storage.Backend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	notifier := newFakeNotifier()
	gate := NewGate(backend, notifier, timeout, time.Millisecond, zap.NewNop())
	return gate, notifier, backend
}

func candidate(postID string) models.CandidateResponse {
	return models.CandidateResponse{
		SourcePostID: postID,
		FilteredText: "candidate for " + postID,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestGateRequestPersistsAndDispatches(t *testing.T) {
	gate, notifier, _ := testGate(t, time.Minute)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)

	stored, err := gate.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", stored.Candidate.SourcePostID)

	assert.Contains(t, notifier.pushed[req.ID], "candidate for p1")
}

func TestGateAwaitApproved(t *testing.T) {
	gate, notifier, _ := testGate(t, time.Minute)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)

	notifier.approved = []string{req.ID}

	status, err := gate.Await(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, status)

	stored, err := gate.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestGateAwaitRejected(t *testing.T) {
	gate, notifier, _ := testGate(t, time.Minute)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)

	notifier.rejected = []string{req.ID}

	status, err := gate.Await(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, status)
}

func TestGateAwaitExpires(t *testing.T) {
	gate, _, _ := testGate(t, 0)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)

	status, err := gate.Await(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, status)

	stored, err := gate.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
}

func TestGatePollDropsUnknownDecisions(t *testing.T) {
	gate, notifier, _ := testGate(t, time.Minute)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)

	notifier.approved = []string{"no-such-request"}

	status, err := gate.Poll(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)
}

func TestGateTerminalStatusSticks(t *testing.T) {
	gate, notifier, _ := testGate(t, time.Minute)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)

	notifier.approved = []string{req.ID}
	status, err := gate.Poll(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, status)

	// A later contradicting reply cannot undo the decision.
	notifier.rejected = []string{req.ID}
	status, err = gate.Poll(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, status)
}

func TestGateResumeReturnsPersistedRequests(t *testing.T) {
	gate, notifier, _ := testGate(t, time.Minute)
	ctx := context.Background()

	first, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)
	second, err := gate.Request(ctx, candidate("p2"))
	require.NoError(t, err)

	// An approved request whose outcome was never applied is resumed
	// alongside pending ones.
	notifier.approved = []string{first.ID}
	_, err = gate.Poll(ctx, first.ID)
	require.NoError(t, err)

	reqs, err := gate.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	ids := []string{reqs[0].ID, reqs[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
}

func TestGateRemove(t *testing.T) {
	gate, notifier, backend := testGate(t, time.Minute)
	ctx := context.Background()

	req, err := gate.Request(ctx, candidate("p1"))
	require.NoError(t, err)

	require.NoError(t, gate.Remove(ctx, req.ID))
	assert.Contains(t, notifier.deleted, req.ID)

	keys, err := backend.List(ctx, requestPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Removing twice is not an error.
	assert.NoError(t, gate.Remove(ctx, req.ID))
}
