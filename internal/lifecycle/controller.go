// Package lifecycle owns the post state machine. It creates drafts, routes
// them through approval or straight to publication, and applies reviewer
// decisions arriving either from polling or from pushed callbacks.
//
// Every transition is a conditional store write, so a decision delivered
// twice degrades to a no-op instead of a second publication.
package lifecycle

import (
	"math/rand/v2"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/llm"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/media"
	"github.com/dmitrijs2005/postkeeper/internal/publisher"
	"github.com/dmitrijs2005/postkeeper/internal/repositories/posts"
)

const (
	DefaultPurpose = "Showcase expertise in software development and design to attract potential clients"
	DefaultTone    = "professional yet conversational"
)

// Config holds the controller policy.
type Config struct {
	RequireApproval     bool
	ReplyProbability    float64
	EngagementThreshold float64
	// MediaChance and PollChance drive scheduled posts; a poll is only
	// considered when no media was drawn.
	MediaChance float64
	PollChance  float64
	Purpose     string
	Tone        string
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		RequireApproval:     true,
		ReplyProbability:    0.7,
		EngagementThreshold: 0.6,
		MediaChance:         0.6,
		PollChance:          0.4,
		Purpose:             DefaultPurpose,
		Tone:                DefaultTone,
	}
}

// Deps are the collaborators of a Controller. Offloader may be nil.
type Deps struct {
	Store     posts.Repository
	Cache     cache.Cache
	Gateway   gateway.Gateway
	Publisher publisher.Publisher
	Mentions  publisher.MentionSource
	Generator llm.Generator
	Offloader media.Offloader
	Logger    logging.Logger
}

// Controller drives posts through draft, pending, approved, rejected and
// published.
type Controller struct {
	cfg       Config
	store     posts.Repository
	cache     cache.Cache
	gateway   gateway.Gateway
	publisher publisher.Publisher
	mentions  publisher.MentionSource
	generator llm.Generator
	offloader media.Offloader
	logger    logging.Logger

	rand func() float64
	now  func() time.Time
}

type Option func(*Controller)

// WithRand replaces the uniform [0,1) source used for probability draws.
func WithRand(fn func() float64) Option {
	return func(c *Controller) { c.rand = fn }
}

// WithClock replaces the clock used for creation timestamps.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) { c.now = fn }
}

func New(cfg Config, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		store:     deps.Store,
		cache:     deps.Cache,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		mentions:  deps.Mentions,
		generator: deps.Generator,
		offloader: deps.Offloader,
		logger:    deps.Logger,
		rand:      rand.Float64,
		now:       time.Now,
	}
	if c.offloader == nil {
		c.offloader = media.Noop{}
	}
	if c.logger == nil {
		c.logger = logging.Nop{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
