package gateway

import (
	"fmt"
	"sync"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

type bookEntry struct {
	content   models.Content
	status    models.Status
	messageTS string
	edited    bool
}

// Book is the in-process record of requests and the decisions pushed for
// them. It does not survive a restart; lookups of unknown ids fail with
// common.ErrNotFound.
type Book struct {
	mu      sync.RWMutex
	entries map[string]*bookEntry
}

func NewBook() *Book {
	return &Book{entries: make(map[string]*bookEntry)}
}

func (b *Book) open(t Ticket, c models.Content) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[t.ApprovalID] = &bookEntry{content: c, status: models.StatusPending, messageTS: t.MessageTS}
}

// Record applies a pushed decision. Decisions for ids the book never saw
// are kept so that status polls in this process observe them.
func (b *Book) Record(d Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[d.Approval()]
	if !ok {
		e = &bookEntry{status: models.StatusPending}
		b.entries[d.Approval()] = e
	}
	if e.status != models.StatusPending {
		return
	}
	switch d := d.(type) {
	case Approve:
		e.status = models.StatusApproved
	case Reject:
		e.status = models.StatusRejected
	case Edit:
		e.content.Text = d.Text
		e.edited = true
	}
}

func (b *Book) lookup(approvalID string) (bookEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[approvalID]
	if !ok {
		return bookEntry{}, fmt.Errorf("approval %s: %w", approvalID, common.ErrNotFound)
	}
	return *e, nil
}

// Status returns the recorded status of approvalID.
func (b *Book) Status(approvalID string) (models.Status, error) {
	e, err := b.lookup(approvalID)
	if err != nil {
		return "", err
	}
	return e.status, nil
}

// Approved returns the content approved after an edit recorded by this
// book. It is nil while not approved and when no edit passed through here,
// in which case the stored text is authoritative.
func (b *Book) Approved(approvalID string) (*models.Content, error) {
	e, err := b.lookup(approvalID)
	if err != nil {
		return nil, err
	}
	if e.status != models.StatusApproved || !e.edited || e.content.Text == "" {
		return nil, nil
	}
	c := e.content
	return &c, nil
}
