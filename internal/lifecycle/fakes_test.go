package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/filex"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/dmitrijs2005/postkeeper/internal/repositories/posts"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	requests []models.Content
	status   map[string]models.Status
	text     map[string]string
	updates  []models.Status
	err      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: map[string]models.Status{}, text: map[string]string{}}
}

func (g *fakeGateway) RequestApproval(_ context.Context, c models.Content) (gateway.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return gateway.Ticket{}, g.err
	}
	g.seq++
	id := fmt.Sprintf("appr-%d", g.seq)
	g.requests = append(g.requests, c)
	g.status[id] = models.StatusPending
	g.text[id] = c.Text
	return gateway.Ticket{ApprovalID: id, MessageTS: fmt.Sprintf("ts-%d", g.seq)}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, id string) (models.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.status[id]
	if !ok {
		return "", fmt.Errorf("approval %s: not known", id)
	}
	return s, nil
}

func (g *fakeGateway) ApprovedContent(_ context.Context, id string) (*models.Content, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status[id] != models.StatusApproved {
		return nil, nil
	}
	return &models.Content{Text: g.text[id]}, nil
}

func (g *fakeGateway) UpdateRequest(_ context.Context, _ gateway.Ticket, _ models.Content, status models.Status, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, status)
	return nil
}

func (g *fakeGateway) Record(d gateway.Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.status[d.Approval()]; ok && s != models.StatusPending {
		return
	}
	switch d := d.(type) {
	case gateway.Approve:
		g.status[d.ApprovalID] = models.StatusApproved
	case gateway.Reject:
		g.status[d.ApprovalID] = models.StatusRejected
	case gateway.Edit:
		g.text[d.ApprovalID] = d.Text
	}
}

func (g *fakeGateway) decide(id string, s models.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[id] = s
}

type fakePublisher struct {
	mu        sync.Mutex
	attempts  int
	published []models.Content
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, c models.Content) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, c)
	return fmt.Sprintf("x-%d", len(p.published)), nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fakeMentions struct {
	mentions []models.Mention
	err      error
}

func (m *fakeMentions) Mentions(context.Context) ([]models.Mention, error) {
	return m.mentions, m.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []models.Prompt
	content models.Content
	score   float64
	scored  int
	replies int
	err     error
}

func (g *fakeGenerator) GenerateContent(_ context.Context, p models.Prompt) (models.Content, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return models.Content{}, g.err
	}
	return g.content, nil
}

func (g *fakeGenerator) ScoreMention(context.Context, models.Mention) (models.EngagementScore, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scored++
	return models.EngagementScore{Score: g.score, Reasoning: "test"}, g.err
}

func (g *fakeGenerator) GenerateReply(_ context.Context, m models.Mention) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies++
	return "thanks @" + m.AuthorUsername, nil
}

type unknownDecision struct{}

func (unknownDecision) Approval() string        { return "appr-1" }
func (unknownDecision) By() string              { return "U1" }
func (unknownDecision) Action() gateway.Action { return "archive" }

var errBoom = errors.New("boom")

type fixture struct {
	store     *posts.FileRepository
	cache     *cache.MemoryCache
	gateway   *fakeGateway
	publisher *fakePublisher
	mentions  *fakeMentions
	generator *fakeGenerator
	cfg       Config
	rand      func() float64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := posts.NewFileRepository(filepath.Join(t.TempDir(), "posts.json"), filex.LockOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		store:     store,
		cache:     cache.NewMemoryCache(),
		gateway:   newFakeGateway(),
		publisher: &fakePublisher{},
		mentions:  &fakeMentions{},
		generator: &fakeGenerator{content: models.Content{Text: "hello world"}, score: 0.9},
		cfg:       DefaultConfig(),
		rand:      func() float64 { return 0.5 },
	}
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// controller builds a controller over the fixture. Each call gets a fresh
// view of the shared store but reuses the fixture cache.
func (f *fixture) controller() *Controller {
	return f.controllerWith(f.cache)
}

func (f *fixture) controllerWith(c cache.Cache) *Controller {
	return f.controllerFor(c, f.gateway)
}

// controllerFor stands in for a separate process: same store and cache,
// its own gateway.
func (f *fixture) controllerFor(c cache.Cache, g gateway.Gateway) *Controller {
	return New(f.cfg, Deps{
		Store:     f.store,
		Cache:     c,
		Gateway:   g,
		Publisher: f.publisher,
		Mentions:  f.mentions,
		Generator: f.generator,
	}, WithRand(f.rand), WithClock(func() time.Time { return fixedNow }))
}

func (f *fixture) all(t *testing.T) []*models.Post {
	t.Helper()
	var out []*models.Post
	for _, s := range []models.Status{models.StatusDraft, models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusPublished} {
		ps, err := f.store.ListByStatus(context.Background(), s)
		require.NoError(t, err)
		out = append(out, ps...)
	}
	return out
}

func sequence(vals ...float64) func() float64 {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := vals[i%len(vals)]
		i++
		return v
	}
}
