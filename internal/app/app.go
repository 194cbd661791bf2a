// Package app wires configuration into the running bot: it owns the store,
// cache, collaborators, lifecycle controller, scheduler and webhook server
// and exposes the one-shot commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/config"
	"github.com/dmitrijs2005/postkeeper/internal/lifecycle"
	"github.com/dmitrijs2005/postkeeper/internal/llm"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/dmitrijs2005/postkeeper/internal/repositories/posts"
	"github.com/dmitrijs2005/postkeeper/internal/scheduler"
	"github.com/dmitrijs2005/postkeeper/internal/webhook"
)

// Task names.
const (
	TaskPost      = "post"
	TaskMentions  = "mentions"
	TaskApprovals = "approvals"
)

const stopTimeout = 30 * time.Second

type App struct {
	cfg        *config.Config
	logger     logging.Logger
	store      posts.Repository
	cache      cache.Cache
	gateway    gateway.Gateway
	controller *lifecycle.Controller

	scheduler *scheduler.Scheduler
	webhook   *webhook.Server

	closers []func() error

	mu      sync.Mutex
	cancel  context.CancelFunc
	serving sync.WaitGroup
}

// New opens the store and cache and builds the collaborators selected by
// cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	c, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("cache init error: %w", err)
	}
	a.cache = c
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	offloader, err := newOffloader(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("media init error: %w", err)
	}

	gw, editor := newGateway(cfg, logger)
	a.gateway = gw
	pub, mentions := newPublisher(cfg, logger)

	key, model := cfg.LLMKey()
	if key == "" {
		logger.Warn(ctx, "no llm api key configured", "provider", cfg.LLMProvider)
	}
	gen := llm.New(ctx, llm.Options{
		Provider:   cfg.LLMProvider,
		APIKey:     key,
		Model:      model,
		BaseURL:    cfg.LLMBaseURL,
		ImageModel: cfg.LLMImageModel,
	}, logger.With("module", "llm"))

	policy := lifecycle.DefaultConfig()
	policy.RequireApproval = cfg.RequireApproval
	policy.ReplyProbability = cfg.ReplyProbability
	policy.EngagementThreshold = cfg.EngagementThreshold

	a.controller = lifecycle.New(policy, lifecycle.Deps{
		Store:     a.store,
		Cache:     a.cache,
		Gateway:   gw,
		Publisher: pub,
		Mentions:  mentions,
		Generator: gen,
		Offloader: offloader,
		Logger:    logger.With("module", "lifecycle"),
	})
	a.webhook = webhook.New(webhook.Config{Addr: cfg.WebhookAddr, JWTSecret: cfg.JWTSecret}, a.controller, editor, logger)
	return a, nil
}

// Controller exposes the lifecycle controller.
func (a *App) Controller() *lifecycle.Controller {
	return a.controller
}

// Start schedules the periodic tasks and starts the webhook server. It
// returns once both are running.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler != nil {
		return errors.New("app already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := scheduler.New(context.WithoutCancel(ctx), a.logger.With("module", "scheduler"))
	tasks := []struct {
		name string
		spec string
		task scheduler.Task
	}{
		{TaskPost, a.cfg.PostCron, a.postTask},
		{TaskMentions, a.cfg.MentionsCron, a.mentionsTask},
		{TaskApprovals, a.cfg.ApprovalsCron, a.approvalsTask},
	}
	for _, t := range tasks {
		if err := s.Add(t.name, t.spec, t.task); err != nil {
			cancel()
			return err
		}
	}
	s.Start()
	a.scheduler = s
	a.cancel = cancel

	a.serving.Add(1)
	go func() {
		defer a.serving.Done()
		if err := a.webhook.Run(runCtx); err != nil {
			a.logger.Error(runCtx, "webhook server failed", "error", err)
		}
	}()

	a.logger.Info(ctx, "postkeeper started",
		"post", a.cfg.PostCron, "mentions", a.cfg.MentionsCron, "approvals", a.cfg.ApprovalsCron,
		"require_approval", a.cfg.RequireApproval)
	return nil
}

// Stop removes the periodic tasks, waits for runs in progress and shuts
// the webhook server down.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	s, cancel := a.scheduler, a.cancel
	a.mu.Unlock()
	if s == nil {
		return nil
	}

	for _, name := range s.Names() {
		s.Remove(name)
	}
	err := s.Stop(ctx)
	cancel()
	a.serving.Wait()
	a.logger.Info(ctx, "postkeeper stopped")
	return err
}

// Run starts the app and blocks until ctx is done, then stops it.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	return a.Stop(sctx)
}

// Close releases the store and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) postTask(ctx context.Context) error {
	p, err := a.controller.ScheduledPost(ctx)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "scheduled post created", "post_id", p.ID, "status", string(p.Status))
	return nil
}

func (a *App) mentionsTask(ctx context.Context) error {
	r, err := a.controller.CheckMentions(ctx)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "mentions checked",
		"seen", r.Seen, "replied", r.Replied, "skipped", r.Skipped, "low_score", r.LowScore, "failed", r.Failed)
	return nil
}

func (a *App) approvalsTask(ctx context.Context) error {
	r, err := a.controller.CheckApprovals(ctx)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "approvals checked",
		"checked", r.Checked, "published", r.Published, "rejected", r.Rejected,
		"pending", r.Pending, "failed", r.Failed, "stuck", len(r.Stuck))
	return nil
}

// PostOnce runs the draft flow once for topic.
func (a *App) PostOnce(ctx context.Context, topic string, includeMedia, includePoll bool) (*models.Post, error) {
	return a.controller.CustomPost(ctx, topic, includeMedia, includePoll)
}

func (a *App) CheckMentionsOnce(ctx context.Context) (lifecycle.MentionsReport, error) {
	return a.controller.CheckMentions(ctx)
}

func (a *App) CheckApprovalsOnce(ctx context.Context) (lifecycle.ApprovalsReport, error) {
	return a.controller.CheckApprovals(ctx)
}

// List returns the records with status, oldest first.
func (a *App) List(ctx context.Context, status models.Status) ([]*models.Post, error) {
	ps, err := a.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
	return ps, nil
}

func (a *App) PublishStuck(ctx context.Context, postID string) (lifecycle.Outcome, error) {
	return a.controller.PublishStuck(ctx, postID)
}

// Decide applies a decision as if it had been pushed by a reviewer.
func (a *App) Decide(ctx context.Context, d gateway.Decision) error {
	return a.controller.HandleDecision(ctx, d)
}
