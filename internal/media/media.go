// Package media moves inline attachment payloads out of post records
// before they are persisted.
package media

import (
	"context"

	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Offloader replaces inline media payloads with fetchable URLs.
type Offloader interface {
	Offload(ctx context.Context, media []models.Media) ([]models.Media, error)
}

// Noop keeps payloads inline.
type Noop struct{}

func (Noop) Offload(ctx context.Context, media []models.Media) ([]models.Media, error) {
	return media, nil
}
