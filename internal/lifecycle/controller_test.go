package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePost_RequestsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.controller().CreatePost(ctx, models.Prompt{Topic: "go"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, p.Status)
	assert.Equal(t, "appr-1", p.ApprovalID)
	assert.Equal(t, "ts-1", p.MessageTS)
	assert.Equal(t, fixedNow, p.CreatedAt)

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "appr-1", stored.ApprovalID)

	e, ok, err := f.cache.Get(ctx, "appr-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID, e.PostID)
	assert.Equal(t, models.StatusPending, e.Status)
	assert.Equal(t, "ts-1", e.MessageTS)

	assert.Zero(t, f.publisher.attempts)
}

func TestCreatePost_WithoutApprovalPublishes(t *testing.T) {
	f := newFixture(t)
	f.cfg.RequireApproval = false
	ctx := context.Background()

	p, err := f.controller().CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPublished, p.Status)
	assert.Empty(t, p.ApprovalID)
	assert.Empty(t, f.gateway.requests)
	require.Equal(t, 1, f.publisher.count())
	assert.Equal(t, "hello world", f.publisher.published[0].Text)
}

func TestCreatePost_PublishFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	f.cfg.RequireApproval = false
	f.publisher.err = errBoom
	ctx := context.Background()

	p, err := f.controller().CreatePost(ctx, models.Prompt{})
	require.ErrorIs(t, err, errBoom)
	require.NotNil(t, p)

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, stored.Status)
}

func TestCreatePost_GeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errBoom

	_, err := f.controller().CreatePost(context.Background(), models.Prompt{})
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.all(t))
}

func TestCreatePost_GatewayFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = common.Collaborator("slack", errBoom)

	p, err := f.controller().CreatePost(context.Background(), models.Prompt{})
	require.ErrorIs(t, err, common.ErrCollaborator)
	assert.Equal(t, models.StatusDraft, p.Status)
	assert.Zero(t, f.cache.Len())
}

func TestScheduledPost_DrawsMediaOrPoll(t *testing.T) {
	tests := []struct {
		name      string
		draws     []float64
		wantMedia bool
		wantPoll  bool
	}{
		{name: "media", draws: []float64{0.1}, wantMedia: true},
		{name: "poll", draws: []float64{0.9, 0.2}, wantPoll: true},
		{name: "text only", draws: []float64{0.9, 0.8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.rand = sequence(tt.draws...)

			_, err := f.controller().ScheduledPost(context.Background())
			require.NoError(t, err)

			require.Len(t, f.generator.prompts, 1)
			got := f.generator.prompts[0]
			assert.Equal(t, tt.wantMedia, got.IncludeMedia)
			assert.Equal(t, tt.wantPoll, got.IncludePoll)
			assert.Equal(t, DefaultPurpose, got.Purpose)
			assert.Equal(t, DefaultTone, got.Tone)
		})
	}
}

func TestCheckApprovals_ApprovedPublishesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	f.gateway.decide(p.ApprovalID, models.StatusApproved)

	r, err := c.CheckApprovals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Checked)
	assert.Equal(t, 1, r.Published)

	r, err = c.CheckApprovals(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Checked)

	out, err := c.PublishApprovedPost(ctx, p.ApprovalID)
	require.NoError(t, err)
	assert.False(t, out.Published)
	assert.Equal(t, models.StatusPublished, out.Status)

	assert.Equal(t, 1, f.publisher.count())
	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Contains(t, f.gateway.updates, models.StatusPublished)
}

func TestCheckApprovals_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	f.gateway.decide(p.ApprovalID, models.StatusRejected)

	r, err := c.CheckApprovals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Rejected)

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)

	_, err = c.PublishApprovedPost(ctx, p.ApprovalID)
	require.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Zero(t, f.publisher.attempts)
}

func TestCheckApprovals_PendingAndFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	_, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	p2, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	f.gateway.mu.Lock()
	delete(f.gateway.status, p2.ApprovalID)
	f.gateway.mu.Unlock()

	r, err := c.CheckApprovals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Checked)
	assert.Equal(t, 1, r.Pending)
	assert.Equal(t, 1, r.Failed)
	assert.Empty(t, r.Stuck)
}

func TestPublishApprovedPost_RehydratedRejectedNeverPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.controller().CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	_, err = f.controller().RejectPost(ctx, p.ApprovalID)
	require.NoError(t, err)

	// a separate process: empty cache, shared store
	fresh := cache.NewMemoryCache()
	other := f.controllerWith(fresh)

	_, err = other.PublishApprovedPost(ctx, p.ApprovalID)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	e, ok, err := fresh.Get(ctx, p.ApprovalID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusRejected, e.Status)

	require.NoError(t, other.HandleDecision(ctx, gateway.Approve{ApprovalID: p.ApprovalID, Actor: "U1"}))
	assert.Zero(t, f.publisher.attempts)
}

func TestPublishApprovedPost_StaleCacheLosesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.controller().CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)

	// another process rejected the record; this cache still says pending
	require.NoError(t, f.store.UpdateStatus(ctx, p.ID, models.StatusRejected, models.StatusUpdate{}))

	_, err = f.controller().PublishApprovedPost(ctx, p.ApprovalID)
	require.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Zero(t, f.publisher.attempts)

	e, _, err := f.cache.Get(ctx, p.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, e.Status)
}

func TestPublishApprovedPost_UnknownApproval(t *testing.T) {
	f := newFixture(t)
	_, err := f.controller().PublishApprovedPost(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPublishApprovedPost_ConcurrentCallsPublishOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.controller().CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	f.gateway.decide(p.ApprovalID, models.StatusApproved)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// separate caches so every caller reaches the store claim
			c := f.controllerWith(cache.NewMemoryCache())
			_, err := c.PublishApprovedPost(ctx, p.ApprovalID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.publisher.count())
	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)
}

func TestPublishApprovedPost_FailureLeavesStuckRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	f.gateway.decide(p.ApprovalID, models.StatusApproved)
	f.publisher.err = errBoom

	_, err = c.PublishApprovedPost(ctx, p.ApprovalID)
	require.ErrorIs(t, err, errBoom)

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)

	f.publisher.err = nil
	r, err := c.CheckApprovals(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, r.Stuck)

	// a late duplicate does not republish
	require.NoError(t, c.HandleDecision(ctx, gateway.Approve{ApprovalID: p.ApprovalID}))
	assert.Zero(t, f.publisher.count())

	out, err := c.PublishStuck(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, out.Published)
	assert.Equal(t, 1, f.publisher.count())

	_, err = c.PublishStuck(ctx, p.ID)
	require.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Equal(t, 1, f.publisher.count())
}

func TestHandleDecision_ApproveTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)

	d := gateway.Approve{ApprovalID: p.ApprovalID, Actor: "U1"}
	require.NoError(t, c.HandleDecision(ctx, d))
	require.NoError(t, c.HandleDecision(ctx, d))

	assert.Equal(t, 1, f.publisher.count())
	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)
}

func TestHandleDecision_RejectThenApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)

	require.NoError(t, c.HandleDecision(ctx, gateway.Reject{ApprovalID: p.ApprovalID, Actor: "U1"}))
	require.NoError(t, c.HandleDecision(ctx, gateway.Reject{ApprovalID: p.ApprovalID, Actor: "U1"}))
	require.NoError(t, c.HandleDecision(ctx, gateway.Approve{ApprovalID: p.ApprovalID, Actor: "U2"}))

	assert.Zero(t, f.publisher.attempts)
	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.Contains(t, f.gateway.updates, models.StatusRejected)
}

func TestHandleDecision_EditThenApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)

	require.NoError(t, c.HandleDecision(ctx, gateway.Edit{ApprovalID: p.ApprovalID, Actor: "U1", Text: "edited"}))

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", stored.Text)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, []models.Status{models.StatusPending}, f.gateway.updates)

	e, _, err := f.cache.Get(ctx, p.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, "edited", e.Content.Text)
	assert.Equal(t, "ts-1", e.MessageTS)

	require.NoError(t, c.HandleDecision(ctx, gateway.Approve{ApprovalID: p.ApprovalID, Actor: "U1"}))
	require.Equal(t, 1, f.publisher.count())
	assert.Equal(t, "edited", f.publisher.published[0].Text)
}

func TestHandleDecision_EditFromOtherProcessIsPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := cache.NewMemoryCache()
	submitter := f.controllerFor(shared, gateway.NewLocal(logging.Nop{}))
	editor := f.controllerFor(shared, gateway.NewLocal(logging.Nop{}))

	p, err := submitter.Submit(ctx, models.Content{Text: "original"})
	require.NoError(t, err)

	require.NoError(t, editor.HandleDecision(ctx, gateway.Edit{ApprovalID: p.ApprovalID, Text: "edited"}))
	require.NoError(t, submitter.HandleDecision(ctx, gateway.Approve{ApprovalID: p.ApprovalID}))

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, "edited", stored.Text)
	require.Equal(t, 1, f.publisher.count())
	assert.Equal(t, "edited", f.publisher.published[0].Text)
}

func TestPublishApprovedPost_AppliesGatewayEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	f.gateway.mu.Lock()
	f.gateway.text[p.ApprovalID] = "edited in review"
	f.gateway.status[p.ApprovalID] = models.StatusApproved
	f.gateway.mu.Unlock()

	out, err := c.PublishApprovedPost(ctx, p.ApprovalID)
	require.NoError(t, err)
	assert.True(t, out.Published)
	assert.Equal(t, "edited in review", f.publisher.published[0].Text)

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited in review", stored.Text)
}

func TestHandleDecision_EditAfterPublishIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller()

	p, err := c.CreatePost(ctx, models.Prompt{})
	require.NoError(t, err)
	require.NoError(t, c.HandleDecision(ctx, gateway.Approve{ApprovalID: p.ApprovalID}))
	require.NoError(t, c.HandleDecision(ctx, gateway.Edit{ApprovalID: p.ApprovalID, Text: "too late"}))

	stored, err := f.store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", stored.Text)
}

func TestHandleDecision_UnknownAction(t *testing.T) {
	f := newFixture(t)
	err := f.controller().HandleDecision(context.Background(), unknownDecision{})
	require.ErrorIs(t, err, common.ErrUnknownAction)
}

func TestHandleDecision_UnknownApproval(t *testing.T) {
	f := newFixture(t)
	err := f.controller().HandleDecision(context.Background(), gateway.Approve{ApprovalID: "nope"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestEditPost_RejectsBlankText(t *testing.T) {
	f := newFixture(t)
	_, err := f.controller().EditPost(context.Background(), "appr-1", "  ")
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}
