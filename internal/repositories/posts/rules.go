package posts

import (
	"fmt"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// applyStatus applies a status write to p in place. It does not check the
// current status against an expected one, but the move itself must be an
// edge of the state machine; rewriting the same status only merges fields.
func applyStatus(p *models.Post, status models.Status, upd models.StatusUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", common.ErrMalformedPayload, status)
	}
	if p.Status != status && !models.CanTransition(p.Status, status) {
		return &models.TransitionError{ID: p.ID, Current: p.Status, To: status}
	}
	next := p.Clone()
	next.Status = status
	upd.Apply(next)
	if err := next.Validate(); err != nil {
		return err
	}
	*p = *next
	return nil
}

// applyTransition applies a conditional status write to p in place.
func applyTransition(p *models.Post, from []models.Status, to models.Status, upd models.StatusUpdate) error {
	if err := models.CheckTransition(p, from, to); err != nil {
		return err
	}
	next := p.Clone()
	next.Status = to
	upd.Apply(next)
	if err := next.Validate(); err != nil {
		return err
	}
	*p = *next
	return nil
}

// applyContent merges a content update into p in place.
func applyContent(p *models.Post, upd models.ContentUpdate) error {
	if p.Status != models.StatusDraft && p.Status != models.StatusPending {
		return fmt.Errorf("%w: content of post %s is frozen in status %s", common.ErrInvalidTransition, p.ID, p.Status)
	}
	upd.Apply(p)
	return nil
}

func notFound(kind, key string) error {
	return fmt.Errorf("post %s %q: %w", kind, key, common.ErrNotFound)
}
