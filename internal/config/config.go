// Package config assembles runtime settings from defaults, the environment
// (optionally seeded from a .env file), an optional JSON or YAML file and
// command-line flags, in that order.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/timex"
)

// Store and cache drivers.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds runtime settings for postkeeper.
//
// Cadences are standard five-field cron expressions (or descriptors such
// as "@every 10m"). Secrets default to empty; a collaborator without its
// credentials falls back to a local implementation.
type Config struct {
	DataDir   string `json:"data_dir" yaml:"data_dir" env:"POSTKEEPER_DATA_DIR"`
	LogLevel  string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"LOG_FORMAT"`

	StoreDriver string `json:"store_driver" yaml:"store_driver" env:"STORE_DRIVER"`
	StoreDSN    string `json:"store_dsn" yaml:"store_dsn" env:"STORE_DSN"`

	CacheDriver   string         `json:"cache_driver" yaml:"cache_driver" env:"CACHE_DRIVER"`
	RedisAddr     string         `json:"redis_addr" yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string         `json:"redis_password" yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int            `json:"redis_db" yaml:"redis_db" env:"REDIS_DB"`
	CacheTTL      timex.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	PostCron      string `json:"post_cron" yaml:"post_cron" env:"POST_FREQUENCY"`
	MentionsCron  string `json:"mentions_cron" yaml:"mentions_cron" env:"MENTIONS_FREQUENCY"`
	ApprovalsCron string `json:"approvals_cron" yaml:"approvals_cron" env:"APPROVALS_FREQUENCY"`

	ReplyProbability    float64 `json:"reply_probability" yaml:"reply_probability" env:"REPLY_PROBABILITY"`
	EngagementThreshold float64 `json:"engagement_threshold" yaml:"engagement_threshold" env:"ENGAGEMENT_THRESHOLD"`
	RequireApproval     bool    `json:"require_approval" yaml:"require_approval" env:"REQUIRE_APPROVAL"`

	WebhookAddr string `json:"webhook_addr" yaml:"webhook_addr" env:"WEBHOOK_ADDR"`
	JWTSecret   string `json:"jwt_secret" yaml:"jwt_secret" env:"JWT_SECRET"`

	SlackToken   string `json:"slack_token" yaml:"slack_token" env:"SLACK_BOT_TOKEN"`
	SlackChannel string `json:"slack_channel" yaml:"slack_channel" env:"SLACK_CHANNEL_ID"`
	SlackAPIURL  string `json:"slack_api_url" yaml:"slack_api_url" env:"SLACK_API_URL"`

	XBearerToken string         `json:"x_bearer_token" yaml:"x_bearer_token" env:"X_BEARER_TOKEN"`
	XUserID      string         `json:"x_user_id" yaml:"x_user_id" env:"X_USER_ID"`
	XAPIURL      string         `json:"x_api_url" yaml:"x_api_url" env:"X_API_URL"`
	XUploadURL   string         `json:"x_upload_url" yaml:"x_upload_url" env:"X_UPLOAD_URL"`
	XTimeout     timex.Duration `json:"x_timeout" yaml:"x_timeout"`

	LLMProvider   string `json:"llm_provider" yaml:"llm_provider" env:"LLM_PROVIDER"`
	OpenAIAPIKey  string `json:"openai_api_key" yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIModel   string `json:"openai_model" yaml:"openai_model" env:"OPENAI_MODEL"`
	GrokAPIKey    string `json:"grok_api_key" yaml:"grok_api_key" env:"GROK_API_KEY"`
	GrokModel     string `json:"grok_model" yaml:"grok_model" env:"GROK_MODEL"`
	LLMBaseURL    string `json:"llm_base_url" yaml:"llm_base_url" env:"LLM_BASE_URL"`
	LLMImageModel string `json:"llm_image_model" yaml:"llm_image_model" env:"LLM_IMAGE_MODEL"`

	S3Bucket    string         `json:"s3_bucket" yaml:"s3_bucket" env:"S3_BUCKET"`
	S3Region    string         `json:"s3_region" yaml:"s3_region" env:"S3_REGION"`
	S3Endpoint  string         `json:"s3_endpoint" yaml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3AccessKey string         `json:"s3_access_key" yaml:"s3_access_key" env:"S3_ACCESS_KEY"`
	S3SecretKey string         `json:"s3_secret_key" yaml:"s3_secret_key" env:"S3_SECRET_KEY"`
	S3Prefix    string         `json:"s3_prefix" yaml:"s3_prefix" env:"S3_PREFIX"`
	S3URLExpiry timex.Duration `json:"s3_url_expiry" yaml:"s3_url_expiry"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "data"
	c.LogLevel = "info"
	c.LogFormat = "auto"
	c.StoreDriver = StoreFile
	c.CacheDriver = CacheMemory
	c.RedisAddr = "localhost:6379"
	c.CacheTTL = timex.Duration{Duration: 7 * 24 * time.Hour}
	c.PostCron = "0 */4 * * *"
	c.MentionsCron = "*/15 * * * *"
	c.ApprovalsCron = "*/5 * * * *"
	c.ReplyProbability = 0.7
	c.EngagementThreshold = 0.6
	c.RequireApproval = true
	c.WebhookAddr = ":3000"
	c.XTimeout = timex.Duration{Duration: 30 * time.Second}
	c.LLMProvider = "openai"
	c.S3Region = "us-east-1"
	c.S3Prefix = "media"
	c.S3URLExpiry = timex.Duration{Duration: 7 * 24 * time.Hour}
}

// PostsFile is the JSON store location used by the file driver.
func (c *Config) PostsFile() string {
	if c.StoreDriver == StoreFile && c.StoreDSN != "" {
		return c.StoreDSN
	}
	return filepath.Join(c.DataDir, "posts.json")
}

// MentionCursorFile holds the newest processed mention id.
func (c *Config) MentionCursorFile() string {
	return filepath.Join(c.DataDir, "last_mention_id")
}

// LLMKey returns the key and model of the selected provider.
func (c *Config) LLMKey() (key, model string) {
	if c.LLMProvider == "grok" {
		return c.GrokAPIKey, c.GrokModel
	}
	return c.OpenAIAPIKey, c.OpenAIModel
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ReplyProbability < 0 || c.ReplyProbability > 1 {
		return invalid("reply probability %v is outside [0,1]", c.ReplyProbability)
	}
	if c.EngagementThreshold < 0 || c.EngagementThreshold > 1 {
		return invalid("engagement threshold %v is outside [0,1]", c.EngagementThreshold)
	}
	for name, spec := range map[string]string{"post": c.PostCron, "mentions": c.MentionsCron, "approvals": c.ApprovalsCron} {
		if spec == "" {
			return invalid("%s cadence is empty", name)
		}
	}
	switch c.StoreDriver {
	case StoreFile, StoreSQLite:
	case StorePostgres:
		if c.StoreDSN == "" {
			return invalid("postgres store needs a dsn")
		}
	default:
		return invalid("unknown store driver %q", c.StoreDriver)
	}
	switch c.CacheDriver {
	case CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return invalid("redis cache needs an address")
		}
	default:
		return invalid("unknown cache driver %q", c.CacheDriver)
	}
	if c.SlackToken != "" && c.SlackChannel == "" {
		return invalid("slack token set without a channel")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: config: %s", common.ErrMalformedPayload, fmt.Sprintf(format, args...))
}
