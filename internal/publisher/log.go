package publisher

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Log is a dry-run publisher and mention source used when no platform
// credentials are configured.
type Log struct {
	logger logging.Logger
	seq    atomic.Int64
}

func NewLog(logger logging.Logger) *Log {
	return &Log{logger: logger}
}

func (p *Log) Publish(ctx context.Context, c models.Content) (string, error) {
	id := fmt.Sprintf("dry-run-%d", p.seq.Add(1))
	p.logger.Info(ctx, "dry-run publish",
		"external_id", id, "reply_to", c.ReplyTargetID, "media", len(c.Media), "poll", c.Poll != nil, "text", c.Text)
	return id, nil
}

func (p *Log) Mentions(ctx context.Context) ([]models.Mention, error) {
	return nil, nil
}
