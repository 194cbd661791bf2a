// Package llm generates post content, scores mentions and writes replies
// through an OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Generator produces content for the lifecycle controller.
type Generator interface {
	GenerateContent(ctx context.Context, p models.Prompt) (models.Content, error)
	ScoreMention(ctx context.Context, m models.Mention) (models.EngagementScore, error)
	GenerateReply(ctx context.Context, m models.Mention) (string, error)
}

// Provider names a supported backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGrok   Provider = "grok"
)

const (
	grokBaseURL        = "https://api.x.ai/v1"
	defaultOpenAIModel = "gpt-4o"
	defaultGrokModel   = "grok-2"
)

// Options configures New.
type Options struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// ImageModel is used for media generation; empty disables images.
	ImageModel string
}

// New returns a Generator for opts.Provider. Unknown providers fall back to
// OpenAI with a warning.
func New(ctx context.Context, opts Options, logger logging.Logger) *Client {
	provider := Provider(strings.ToLower(strings.TrimSpace(opts.Provider)))
	switch provider {
	case ProviderOpenAI:
	case ProviderGrok:
		if opts.BaseURL == "" {
			opts.BaseURL = grokBaseURL
		}
		if opts.Model == "" {
			opts.Model = defaultGrokModel
		}
		// the grok endpoint has no image generation
		opts.ImageModel = ""
	default:
		logger.Warn(ctx, "unknown llm provider, using openai", "provider", opts.Provider)
		provider = ProviderOpenAI
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
	}
	return newClient(provider, opts, logger)
}
