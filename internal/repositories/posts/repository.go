// Package posts is the durable post store: the source of truth for post
// records across process restarts. Two backends implement Repository: a
// human-diffable JSON file and a SQL database (SQLite or PostgreSQL).
package posts

import (
	"context"

	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Repository describes the post store. Lookups report a miss with
// common.ErrNotFound; writes never interleave partial rewrites.
type Repository interface {
	// Append inserts a new record. It fails with common.ErrDuplicateID when
	// the id (or a non-empty approval id) is already used.
	Append(ctx context.Context, p *models.Post) error

	// UpdateStatus sets the status and merges the non-empty optional fields.
	// A record never leaves a terminal status.
	UpdateStatus(ctx context.Context, id string, status models.Status, upd models.StatusUpdate) error

	// Transition is the conditional form of UpdateStatus: the write happens
	// only when the stored status is in from and the edge exists. On
	// rejection it returns *models.TransitionError. The updated record is
	// returned on success.
	Transition(ctx context.Context, id string, from []models.Status, to models.Status, upd models.StatusUpdate) (*models.Post, error)

	// UpdateContent merges text/media/poll. Content is frozen once the
	// record left draft/pending.
	UpdateContent(ctx context.Context, id string, upd models.ContentUpdate) error

	// FindByID returns the record with id.
	FindByID(ctx context.Context, id string) (*models.Post, error)

	// FindByApprovalID returns the record referencing approvalID.
	FindByApprovalID(ctx context.Context, approvalID string) (*models.Post, error)

	// ListByStatus returns all records with status. Order is not significant.
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Post, error)

	// Close releases backend resources.
	Close() error
}
