// Package cache is the approval cache: a shadow of pending post records
// keyed by approval id. It is never authoritative; on disagreement the post
// store wins and entries are refreshed from it.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Entry is the denormalized copy of a post held for an approval id.
// MessageTS may be empty after rehydration.
type Entry struct {
	PostID    string         `json:"postId"`
	Content   models.Content `json:"content"`
	Status    models.Status  `json:"status"`
	MessageTS string         `json:"messageTs,omitempty"`
}

// EntryFromPost builds an entry from a stored record.
func EntryFromPost(p *models.Post) Entry {
	return Entry{
		PostID:    p.ID,
		Content:   p.Content(),
		Status:    p.Status,
		MessageTS: p.MessageTS,
	}
}

// Cache stores entries by approval id. Get reports a miss with ok=false.
type Cache interface {
	Get(ctx context.Context, approvalID string) (e Entry, ok bool, err error)
	Put(ctx context.Context, approvalID string, e Entry) error
	Delete(ctx context.Context, approvalID string) error
}

// Lookup is the store query used for rehydration.
type Lookup interface {
	FindByApprovalID(ctx context.Context, approvalID string) (*models.Post, error)
}

// Rehydrate returns the cached entry for approvalID, consulting the store on
// a miss. A store miss leaves the cache empty and returns ok=false.
func Rehydrate(ctx context.Context, c Cache, store Lookup, approvalID string) (Entry, bool, error) {
	if e, ok, err := c.Get(ctx, approvalID); err != nil {
		return Entry{}, false, err
	} else if ok {
		return e, true, nil
	}
	return Refresh(ctx, c, store, approvalID)
}

// Refresh reloads the entry for approvalID from the store. The status and
// content always come from the store; a cached MessageTS survives when the
// stored record does not carry one.
func Refresh(ctx context.Context, c Cache, store Lookup, approvalID string) (Entry, bool, error) {
	p, err := store.FindByApprovalID(ctx, approvalID)
	if errors.Is(err, common.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("rehydrate %s: %w", approvalID, err)
	}

	e := EntryFromPost(p)
	if e.MessageTS == "" {
		if old, ok, err := c.Get(ctx, approvalID); err == nil && ok {
			e.MessageTS = old.MessageTS
		}
	}
	if err := c.Put(ctx, approvalID, e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}
