// Package publisher holds the outbound side of the bot: publishing approved
// content and reading mentions addressed to the account.
package publisher

import (
	"context"

	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Publisher posts content to the platform and returns the external id.
// Content with a ReplyTargetID is published as a reply to that post.
type Publisher interface {
	Publish(ctx context.Context, c models.Content) (string, error)
}

// MentionSource returns mentions not seen by earlier calls.
type MentionSource interface {
	Mentions(ctx context.Context) ([]models.Mention, error)
}
