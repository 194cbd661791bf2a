// Package webhook is the inbound HTTP surface: pushed reviewer decisions,
// Slack interactivity callbacks and the Slack events handshake.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack/slackevents"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Decisions is the lifecycle side of the webhook.
type Decisions interface {
	HandleDecision(ctx context.Context, d gateway.Decision) error
	Approval(ctx context.Context, approvalID string) (cache.Entry, error)
}

// Editor opens the edit dialog of a pending request.
type Editor interface {
	OpenEditor(ctx context.Context, triggerID, approvalID, text string) error
}

type Config struct {
	Addr      string
	JWTSecret string
}

// Server acknowledges callbacks immediately and applies the decisions in
// the background. Shutdown waits for decisions in flight.
type Server struct {
	addr      string
	engine    *gin.Engine
	decisions Decisions
	editor    Editor
	logger    logging.Logger

	inflight sync.WaitGroup
}

// New builds the server. editor may be nil when no Slack workspace is
// configured.
func New(cfg Config, decisions Decisions, editor Editor, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:      cfg.Addr,
		engine:    gin.New(),
		decisions: decisions,
		editor:    editor,
		logger:    logger.With("module", "webhook"),
	}
	s.engine.Use(gin.Recovery(), s.requestLog())

	s.engine.GET("/health", s.health)
	api := s.engine.Group("/api")
	api.POST("/approvals/decisions", requireToken([]byte(cfg.JWTSecret)), s.decision)
	api.POST("/slack/interactions", s.slackInteraction)
	api.POST("/slack/events", s.slackEvent)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is done. It returns once
// active requests have completed and the decisions they dispatched are
// applied.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	s.logger.Info(ctx, "Starting webhook server", "address", listen.Addr().String())
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(listen)
	}()

	select {
	case err := <-served:
		s.inflight.Wait()
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping webhook server...")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.logger.Error(sctx, "webhook shutdown failed", "error", err)
		_ = srv.Close()
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error(sctx, "webhook server stopped", "error", err)
	}
	s.inflight.Wait()
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// dispatch applies d outside the request. Errors are logged at this
// boundary.
func (s *Server) dispatch(ctx context.Context, d gateway.Decision) {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.decisions.HandleDecision(ctx, d); err != nil {
			s.logger.Error(ctx, "decision not applied",
				common.LogKeyApprovalID, d.Approval(),
				common.LogKeyAction, string(d.Action()),
				"error", err)
		}
	}()
}

func (s *Server) decision(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	d, err := gateway.ParseDecision(body)
	if err != nil {
		s.logger.Warn(c.Request.Context(), "rejected decision payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if actor, ok := c.Get(actorKey); ok && d.By() == "" {
		d = withActor(d, actor.(string))
	}

	s.dispatch(c.Request.Context(), d)
	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"approvalId": d.Approval(),
		"action":     string(d.Action()),
	})
}

func withActor(d gateway.Decision, actor string) gateway.Decision {
	switch d := d.(type) {
	case gateway.Approve:
		d.Actor = actor
		return d
	case gateway.Reject:
		d.Actor = actor
		return d
	case gateway.Edit:
		d.Actor = actor
		return d
	}
	return d
}

func (s *Server) slackInteraction(c *gin.Context) {
	ctx := c.Request.Context()
	payload := c.PostForm("payload")
	if payload == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload"})
		return
	}
	in, err := gateway.ParseInteraction([]byte(payload))
	if err != nil {
		s.logger.Warn(ctx, "rejected slack interaction", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if in.Editor != nil {
		s.openEditor(c, in.Editor)
		return
	}
	s.dispatch(ctx, in.Decision)
	c.Status(http.StatusOK)
}

// openEditor runs inline: Slack trigger ids expire within seconds.
func (s *Server) openEditor(c *gin.Context, req *gateway.EditorRequest) {
	ctx := c.Request.Context()
	log := s.logger.With(common.LogKeyApprovalID, req.ApprovalID, common.LogKeyAction, "open_editor")
	if s.editor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "editing is not available"})
		return
	}
	e, err := s.decisions.Approval(ctx, req.ApprovalID)
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown approval"})
		return
	}
	if err != nil {
		log.Error(ctx, "approval lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if err := s.editor.OpenEditor(ctx, req.TriggerID, req.ApprovalID, e.Content.Text); err != nil {
		log.Error(ctx, "edit dialog not opened", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not open editor"})
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) slackEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if ev.Type == slackevents.URLVerification {
		var r slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed challenge"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"challenge": r.Challenge})
		return
	}
	s.logger.Debug(c.Request.Context(), "slack event ignored", "type", ev.Type)
	c.Status(http.StatusOK)
}
