package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultTopic = "software development, design, or technology trends"
	maxAltText   = 100
)

// Client talks to an OpenAI-compatible endpoint.
type Client struct {
	provider   Provider
	api        *openai.Client
	model      string
	imageModel string
	logger     logging.Logger
}

func newClient(provider Provider, opts Options, logger logging.Logger) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	return &Client{
		provider:   provider,
		api:        openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		imageModel: opts.ImageModel,
		logger:     logger,
	}
}

// Provider reports the backend in use.
func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage, asJSON bool) (string, error) {
	req := openai.ChatCompletionRequest{Model: c.model, Messages: messages}
	if asJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", common.Collaborator(string(c.provider), err)
	}
	if len(resp.Choices) == 0 {
		return "", common.Collaborator(string(c.provider), fmt.Errorf("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type generated struct {
	Text        string       `json:"text"`
	ImagePrompt string       `json:"imagePrompt"`
	Poll        *models.Poll `json:"poll"`
}

func (c *Client) GenerateContent(ctx context.Context, p models.Prompt) (models.Content, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(p)}}
	for _, m := range p.ContextMessages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: contentPrompt(p)})

	raw, err := c.complete(ctx, msgs, true)
	if err != nil {
		return models.Content{}, fmt.Errorf("generate content: %w", err)
	}
	var g generated
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return models.Content{}, fmt.Errorf("%w: generated content: %v", common.ErrMalformedPayload, err)
	}
	if strings.TrimSpace(g.Text) == "" {
		return models.Content{}, fmt.Errorf("%w: generated content has no text", common.ErrMalformedPayload)
	}

	out := models.Content{Text: g.Text}
	if p.IncludePoll && g.Poll != nil && len(g.Poll.Options) >= 2 {
		out.Poll = g.Poll
	}
	if p.IncludeMedia && g.ImagePrompt != "" && c.imageModel != "" {
		data, err := c.generateImage(ctx, g.ImagePrompt)
		if err != nil {
			// a post without its image is still publishable
			c.logger.Warn(ctx, "image generation failed", "error", err)
		} else {
			alt := []rune(g.ImagePrompt)
			if len(alt) > maxAltText {
				alt = alt[:maxAltText]
			}
			out.Media = []models.Media{{Type: models.MediaImage, Data: data, AltText: string(alt)}}
		}
	}
	return out, nil
}

func (c *Client) generateImage(ctx context.Context, prompt string) (models.Binary, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt + " - Create a professional, high-quality image suitable for a software development and design agency.",
		Model:          c.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, common.Collaborator(string(c.provider), err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, common.Collaborator(string(c.provider), fmt.Errorf("no image data returned"))
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: image data: %v", common.ErrMalformedPayload, err)
	}
	return data, nil
}

func (c *Client) ScoreMention(ctx context.Context, m models.Mention) (models.EngagementScore, error) {
	raw, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: scorePrompt(m)},
	}, true)
	if err != nil {
		return models.EngagementScore{}, fmt.Errorf("score mention %s: %w", m.ID, err)
	}
	var s models.EngagementScore
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return models.EngagementScore{}, fmt.Errorf("%w: score of mention %s: %v", common.ErrMalformedPayload, m.ID, err)
	}
	return s, nil
}

func (c *Client) GenerateReply(ctx context.Context, m models.Mention) (string, error) {
	text, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: replyPrompt(m)},
	}, false)
	if err != nil {
		return "", fmt.Errorf("reply to mention %s: %w", m.ID, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty reply for mention %s", common.ErrMalformedPayload, m.ID)
	}
	return text, nil
}
