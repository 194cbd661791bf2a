package lifecycle

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// ScheduledPost generates a post on the default topic, drawing whether it
// carries media or a poll.
func (c *Controller) ScheduledPost(ctx context.Context) (*models.Post, error) {
	includeMedia := c.rand() < c.cfg.MediaChance
	includePoll := !includeMedia && c.rand() < c.cfg.PollChance
	return c.CreatePost(ctx, c.prompt("", includeMedia, includePoll))
}

// CustomPost generates a post about topic.
func (c *Controller) CustomPost(ctx context.Context, topic string, includeMedia, includePoll bool) (*models.Post, error) {
	return c.CreatePost(ctx, c.prompt(topic, includeMedia, includePoll))
}

func (c *Controller) prompt(topic string, includeMedia, includePoll bool) models.Prompt {
	return models.Prompt{
		Topic:        topic,
		IncludeMedia: includeMedia,
		IncludePoll:  includePoll,
		Purpose:      c.cfg.Purpose,
		Tone:         c.cfg.Tone,
	}
}

// CreatePost generates content for p and submits it.
func (c *Controller) CreatePost(ctx context.Context, p models.Prompt) (*models.Post, error) {
	content, err := c.generator.GenerateContent(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return c.Submit(ctx, content)
}

// CreateReply submits text as a reply to mention.
func (c *Controller) CreateReply(ctx context.Context, mention models.Mention, text string) (*models.Post, error) {
	return c.Submit(ctx, models.Content{Text: text, ReplyTargetID: mention.ID})
}

// Submit persists content as a draft, then either publishes it or requests
// approval. The returned record reflects the last successful write.
func (c *Controller) Submit(ctx context.Context, content models.Content) (*models.Post, error) {
	offloaded, err := c.offloader.Offload(ctx, content.Media)
	if err != nil {
		return nil, fmt.Errorf("offload media: %w", err)
	}
	content.Media = offloaded

	draft := models.NewDraft(content, c.now())
	if err := c.store.Append(ctx, draft); err != nil {
		return nil, fmt.Errorf("persist draft: %w", err)
	}
	log := c.logger.With(common.LogKeyPostID, draft.ID)
	log.Info(ctx, "draft created", "reply_to", draft.ReplyTargetID)

	if !c.cfg.RequireApproval {
		return c.publishDraft(ctx, draft)
	}

	ticket, err := c.gateway.RequestApproval(ctx, content)
	if err != nil {
		return draft, fmt.Errorf("request approval for %s: %w", draft.ID, err)
	}

	// The cache is written before the store: until the store write
	// succeeds the entry is the only holder of the message reference.
	entry := cache.Entry{PostID: draft.ID, Content: content, Status: models.StatusPending, MessageTS: ticket.MessageTS}
	if err := c.cache.Put(ctx, ticket.ApprovalID, entry); err != nil {
		log.Warn(ctx, "approval not cached", common.LogKeyApprovalID, ticket.ApprovalID, "error", err)
	}

	pending, err := c.store.Transition(ctx, draft.ID,
		[]models.Status{models.StatusDraft}, models.StatusPending,
		models.StatusUpdate{ApprovalID: ticket.ApprovalID, MessageTS: ticket.MessageTS})
	if err != nil {
		return draft, fmt.Errorf("persist pending %s: %w", draft.ID, err)
	}
	log.Info(ctx, "approval requested", common.LogKeyApprovalID, ticket.ApprovalID)
	return pending, nil
}

func (c *Controller) publishDraft(ctx context.Context, draft *models.Post) (*models.Post, error) {
	externalID, err := c.publisher.Publish(ctx, draft.Content())
	if err != nil {
		return draft, fmt.Errorf("publish %s: %w", draft.ID, err)
	}
	published, err := c.store.Transition(ctx, draft.ID,
		[]models.Status{models.StatusDraft}, models.StatusPublished, models.StatusUpdate{})
	if err != nil {
		return draft, fmt.Errorf("persist published %s (external id %s): %w", draft.ID, externalID, err)
	}
	c.logger.Info(ctx, "post published", common.LogKeyPostID, draft.ID, "external_id", externalID)
	return published, nil
}
