package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Outcome describes the effect of a decision on a record. Published is set
// only for the call that actually handed the content to the publisher.
type Outcome struct {
	PostID     string
	Status     models.Status
	Published  bool
	ExternalID string
}

func (c *Controller) lookup(ctx context.Context, approvalID string) (cache.Entry, error) {
	e, ok, err := cache.Rehydrate(ctx, c.cache, c.store, approvalID)
	if err != nil {
		return cache.Entry{}, err
	}
	if !ok {
		return cache.Entry{}, fmt.Errorf("approval %s: %w", approvalID, common.ErrNotFound)
	}
	return e, nil
}

// remember mirrors p into the cache. Cache failures only cost a later
// rehydration and are not reported to the caller.
func (c *Controller) remember(ctx context.Context, approvalID string, p *models.Post, messageTS string) {
	if approvalID == "" {
		return
	}
	e := cache.EntryFromPost(p)
	if e.MessageTS == "" {
		e.MessageTS = messageTS
	}
	if err := c.cache.Put(ctx, approvalID, e); err != nil {
		c.logger.Warn(ctx, "approval cache write failed", common.LogKeyApprovalID, approvalID, "error", err)
	}
}

// PublishApprovedPost publishes the record behind approvalID. It may be
// called any number of times for the same id: the record is claimed with a
// pending -> approved write and only the claiming call publishes.
func (c *Controller) PublishApprovedPost(ctx context.Context, approvalID string) (Outcome, error) {
	e, err := c.lookup(ctx, approvalID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{PostID: e.PostID, Status: e.Status}
	log := c.logger.With(common.LogKeyPostID, e.PostID, common.LogKeyApprovalID, approvalID)

	switch e.Status {
	case models.StatusPublished, models.StatusApproved:
		log.Info(ctx, "post already claimed, nothing to publish", "status", string(e.Status))
		return out, nil
	case models.StatusRejected:
		return out, &models.TransitionError{ID: e.PostID, Current: e.Status, To: models.StatusPublished}
	}

	if err := c.applyApprovedText(ctx, e, approvalID); err != nil {
		return out, err
	}

	claimed, err := c.store.Transition(ctx, e.PostID,
		[]models.Status{models.StatusPending}, models.StatusApproved, models.StatusUpdate{})
	if err != nil {
		var te *models.TransitionError
		if !errors.As(err, &te) {
			return out, fmt.Errorf("claim %s: %w", e.PostID, err)
		}
		out.Status = te.Current
		if current, ferr := c.store.FindByID(ctx, e.PostID); ferr == nil {
			c.remember(ctx, approvalID, current, e.MessageTS)
		}
		if te.Current == models.StatusPublished || te.Current == models.StatusApproved {
			log.Info(ctx, "post claimed by another caller", "status", string(te.Current))
			return out, nil
		}
		return out, err
	}
	c.remember(ctx, approvalID, claimed, e.MessageTS)
	out.Status = models.StatusApproved

	externalID, err := c.publisher.Publish(ctx, claimed.Content())
	if err != nil {
		log.Error(ctx, "publish failed, post left in approved", "error", err)
		return out, fmt.Errorf("publish %s: %w", e.PostID, err)
	}

	published, err := c.store.Transition(ctx, e.PostID,
		[]models.Status{models.StatusApproved}, models.StatusPublished, models.StatusUpdate{})
	if err != nil {
		log.Error(ctx, "published post not recorded", "external_id", externalID, "error", err)
		return out, fmt.Errorf("persist published %s (external id %s): %w", e.PostID, externalID, err)
	}
	c.remember(ctx, approvalID, published, e.MessageTS)

	log.Info(ctx, "post published", "external_id", externalID)
	return Outcome{PostID: e.PostID, Status: models.StatusPublished, Published: true, ExternalID: externalID}, nil
}

// applyApprovedText stores reviewer edits that reached the gateway but not
// the store. The gateway may not know the request when it was opened by
// another process; the stored text is used then.
func (c *Controller) applyApprovedText(ctx context.Context, e cache.Entry, approvalID string) error {
	approved, err := c.gateway.ApprovedContent(ctx, approvalID)
	if errors.Is(err, common.ErrNotFound) {
		c.logger.Debug(ctx, "gateway has no record of approval", common.LogKeyApprovalID, approvalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("approved content %s: %w", approvalID, err)
	}
	if approved == nil || approved.Text == "" || approved.Text == e.Content.Text {
		return nil
	}
	err = c.store.UpdateContent(ctx, e.PostID, models.TextUpdate(approved.Text))
	if err != nil && !errors.Is(err, common.ErrInvalidTransition) {
		return fmt.Errorf("apply approved text %s: %w", e.PostID, err)
	}
	return nil
}

// RejectPost moves the record behind approvalID to rejected. Rejecting an
// already rejected record is a no-op.
func (c *Controller) RejectPost(ctx context.Context, approvalID string) (Outcome, error) {
	e, err := c.lookup(ctx, approvalID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{PostID: e.PostID, Status: e.Status}
	if e.Status == models.StatusRejected {
		return out, nil
	}

	rejected, err := c.store.Transition(ctx, e.PostID,
		[]models.Status{models.StatusPending}, models.StatusRejected, models.StatusUpdate{})
	if err != nil {
		var te *models.TransitionError
		if errors.As(err, &te) {
			out.Status = te.Current
			if te.Current == models.StatusRejected {
				return out, nil
			}
		}
		return out, fmt.Errorf("reject %s: %w", e.PostID, err)
	}
	c.remember(ctx, approvalID, rejected, e.MessageTS)
	c.logger.Info(ctx, "post rejected", common.LogKeyPostID, e.PostID, common.LogKeyApprovalID, approvalID)
	out.Status = models.StatusRejected
	return out, nil
}

// EditPost replaces the text of a pending record.
func (c *Controller) EditPost(ctx context.Context, approvalID, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, fmt.Errorf("%w: empty edited text", common.ErrMalformedPayload)
	}
	e, err := c.lookup(ctx, approvalID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{PostID: e.PostID, Status: e.Status}
	if e.Status.IsTerminal() || e.Status == models.StatusApproved {
		return out, &models.TransitionError{ID: e.PostID, Current: e.Status, To: models.StatusPending}
	}

	if err := c.store.UpdateContent(ctx, e.PostID, models.TextUpdate(text)); err != nil {
		return out, fmt.Errorf("edit %s: %w", e.PostID, err)
	}
	p, err := c.store.FindByID(ctx, e.PostID)
	if err != nil {
		return out, fmt.Errorf("reload %s: %w", e.PostID, err)
	}
	c.remember(ctx, approvalID, p, e.MessageTS)
	c.logger.Info(ctx, "post text edited", common.LogKeyPostID, e.PostID, common.LogKeyApprovalID, approvalID)
	out.Status = p.Status
	return out, nil
}

// HandleDecision applies a pushed reviewer decision. Duplicate or late
// decisions on a record that already left pending are logged and
// swallowed.
func (c *Controller) HandleDecision(ctx context.Context, d gateway.Decision) error {
	log := c.logger.With(common.LogKeyApprovalID, d.Approval(), common.LogKeyAction, string(d.Action()))

	var apply func() (Outcome, error)
	switch d := d.(type) {
	case gateway.Approve:
		apply = func() (Outcome, error) { return c.PublishApprovedPost(ctx, d.ApprovalID) }
	case gateway.Reject:
		apply = func() (Outcome, error) { return c.RejectPost(ctx, d.ApprovalID) }
	case gateway.Edit:
		apply = func() (Outcome, error) { return c.EditPost(ctx, d.ApprovalID, d.Text) }
	default:
		return fmt.Errorf("%w: %T", common.ErrUnknownAction, d)
	}

	if rec, ok := c.gateway.(gateway.Recorder); ok {
		rec.Record(d)
	}
	_, err := apply()

	if errors.Is(err, common.ErrInvalidTransition) {
		log.Info(ctx, "duplicate decision ignored", "error", err)
		return nil
	}
	if err != nil {
		log.Error(ctx, "decision failed", "error", err)
		return err
	}
	c.rerender(ctx, d.Approval(), d.By())
	return nil
}

func (c *Controller) rerender(ctx context.Context, approvalID, actor string) {
	e, ok, err := c.cache.Get(ctx, approvalID)
	if err != nil || !ok {
		return
	}
	status := e.Status
	if status == models.StatusApproved {
		// claimed but not yet published
		return
	}
	t := gateway.Ticket{ApprovalID: approvalID, MessageTS: e.MessageTS}
	if err := c.gateway.UpdateRequest(ctx, t, e.Content, status, actor); err != nil {
		c.logger.Warn(ctx, "approval message not updated", common.LogKeyApprovalID, approvalID, "error", err)
	}
}

// ApprovalsReport summarizes one approval poll.
type ApprovalsReport struct {
	Checked   int
	Pending   int
	Published int
	Rejected  int
	Failed    int
	// Stuck lists records left in approved by a failed publication.
	Stuck []string
}

// CheckApprovals polls the gateway for every pending record and applies the
// reported decisions. Records stuck in approved are reported, never
// republished.
func (c *Controller) CheckApprovals(ctx context.Context) (ApprovalsReport, error) {
	var r ApprovalsReport
	pending, err := c.store.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return r, fmt.Errorf("list pending: %w", err)
	}

	for _, p := range pending {
		r.Checked++
		log := c.logger.With(common.LogKeyPostID, p.ID, common.LogKeyApprovalID, p.ApprovalID)

		status, err := c.gateway.CheckStatus(ctx, p.ApprovalID)
		if errors.Is(err, common.ErrNotFound) {
			log.Debug(ctx, "approval unknown to gateway")
			r.Pending++
			continue
		}
		if err != nil {
			log.Error(ctx, "approval status check failed", "error", err)
			r.Failed++
			continue
		}

		switch status {
		case models.StatusApproved:
			out, err := c.PublishApprovedPost(ctx, p.ApprovalID)
			switch {
			case errors.Is(err, common.ErrInvalidTransition):
				log.Info(ctx, "approval already handled", "error", err)
			case err != nil:
				log.Error(ctx, "publishing approved post failed", "error", err)
				r.Failed++
			case out.Published:
				r.Published++
				c.rerender(ctx, p.ApprovalID, "")
			}
		case models.StatusRejected:
			if _, err := c.RejectPost(ctx, p.ApprovalID); err != nil {
				log.Error(ctx, "rejecting post failed", "error", err)
				r.Failed++
				continue
			}
			r.Rejected++
			c.rerender(ctx, p.ApprovalID, "")
		default:
			r.Pending++
		}
	}

	stuck, err := c.store.ListByStatus(ctx, models.StatusApproved)
	if err != nil {
		return r, fmt.Errorf("list approved: %w", err)
	}
	for _, p := range stuck {
		c.logger.Warn(ctx, "post stuck in approved, re-drive with publish-stuck",
			common.LogKeyPostID, p.ID, common.LogKeyApprovalID, p.ApprovalID)
		r.Stuck = append(r.Stuck, p.ID)
	}
	return r, nil
}

// PublishStuck publishes a record left in approved. It is an operator
// action: the caller asserts that the earlier publication did not happen.
func (c *Controller) PublishStuck(ctx context.Context, postID string) (Outcome, error) {
	p, err := c.store.FindByID(ctx, postID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{PostID: p.ID, Status: p.Status}
	if p.Status != models.StatusApproved {
		return out, &models.TransitionError{ID: p.ID, Current: p.Status, To: models.StatusPublished}
	}

	externalID, err := c.publisher.Publish(ctx, p.Content())
	if err != nil {
		return out, fmt.Errorf("publish %s: %w", p.ID, err)
	}
	published, err := c.store.Transition(ctx, p.ID,
		[]models.Status{models.StatusApproved}, models.StatusPublished, models.StatusUpdate{})
	if err != nil {
		return out, fmt.Errorf("persist published %s (external id %s): %w", p.ID, externalID, err)
	}
	c.remember(ctx, p.ApprovalID, published, p.MessageTS)
	c.logger.Info(ctx, "stuck post published", common.LogKeyPostID, p.ID, "external_id", externalID)
	return Outcome{PostID: p.ID, Status: models.StatusPublished, Published: true, ExternalID: externalID}, nil
}

// Approval returns the current cache view of approvalID, rehydrating it
// from the store when needed.
func (c *Controller) Approval(ctx context.Context, approvalID string) (cache.Entry, error) {
	return c.lookup(ctx, approvalID)
}
