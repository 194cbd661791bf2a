package llm

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/models"
)

func systemPrompt(p models.Prompt) string {
	return fmt.Sprintf(`You are an AI assistant for a software development and design agency.
Your purpose is to create engaging content for the agency's X (Twitter) account that will attract potential clients.
%s
Use a %s tone.`, p.Purpose, p.Tone)
}

func contentPrompt(p models.Prompt) string {
	topic := p.Topic
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a tweet about %s.\n", topic)
	b.WriteString("The tweet should be engaging, informative, and showcase our expertise.\n")
	if p.IncludeMedia {
		b.WriteString("Also generate a detailed prompt for an image that would complement your post.\n")
	}
	if p.IncludePoll {
		b.WriteString("Also include a poll with 2-4 options related to your post topic.\n")
	}
	b.WriteString(`Format your response as JSON with the following structure:
{
  "text": "Your tweet text",
  "imagePrompt": "Detailed image generation prompt" (only if image was requested),
  "poll": { "options": ["Option 1", "Option 2", ...], "durationMinutes": 1440 } (only if poll was requested)
}`)
	return b.String()
}

func scorePrompt(m models.Mention) string {
	return fmt.Sprintf(`You are an AI assistant evaluating whether to respond to a mention on X (Twitter).
Analyze the following mention and determine if responding would drive engagement for a software development and design agency.
Score from 0.0 to 1.0, where:
- 0.0-0.3: Low engagement potential (spam, trolling, or generic comments)
- 0.4-0.6: Moderate engagement potential (casual questions or comments)
- 0.7-1.0: High engagement potential (specific questions, business inquiries, technical discussions)

Mention: %q

Respond in JSON format:
{
  "score": 0.0-1.0,
  "reasoning": "Brief explanation of your score"
}`, m.Text)
}

func replyPrompt(m models.Mention) string {
	return fmt.Sprintf(`You are an AI assistant for a software development and design agency.
You're responding to a mention on X (Twitter).
Craft a helpful, engaging reply that positions the agency as knowledgeable and approachable.
Keep it concise (max 280 characters) and professional.

Mention: %q

Generate only the reply text without any additional formatting or explanation.`, m.Text)
}
