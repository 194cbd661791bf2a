package lifecycle

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/postkeeper/internal/common"
)

// MentionsReport summarizes one mention pass.
type MentionsReport struct {
	Seen     int
	Skipped  int
	LowScore int
	Replied  int
	Failed   int
}

// CheckMentions evaluates new mentions. Each mention first passes a random
// draw against the reply probability, then the engagement score threshold;
// survivors get a reply routed through Submit. Failures of a single
// mention are logged and do not stop the pass.
func (c *Controller) CheckMentions(ctx context.Context) (MentionsReport, error) {
	var r MentionsReport
	mentions, err := c.mentions.Mentions(ctx)
	if err != nil {
		return r, fmt.Errorf("fetch mentions: %w", err)
	}
	r.Seen = len(mentions)

	for _, m := range mentions {
		log := c.logger.With("mention_id", m.ID)
		if c.rand() > c.cfg.ReplyProbability {
			log.Debug(ctx, "mention skipped by reply probability")
			r.Skipped++
			continue
		}

		score, err := c.generator.ScoreMention(ctx, m)
		if err != nil {
			log.Error(ctx, "mention scoring failed", "error", err)
			r.Failed++
			continue
		}
		if score.Score < c.cfg.EngagementThreshold {
			log.Info(ctx, "mention below engagement threshold", "score", score.Score, "reasoning", score.Reasoning)
			r.LowScore++
			continue
		}

		text, err := c.generator.GenerateReply(ctx, m)
		if err != nil {
			log.Error(ctx, "reply generation failed", "error", err)
			r.Failed++
			continue
		}
		p, err := c.CreateReply(ctx, m, text)
		if err != nil {
			log.Error(ctx, "reply submission failed", "error", err)
			r.Failed++
			continue
		}
		log.Info(ctx, "reply submitted", common.LogKeyPostID, p.ID, "status", string(p.Status), "score", score.Score)
		r.Replied++
	}
	return r, nil
}
