package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/postkeeper/internal/approvals/cache"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/config"
	"github.com/dmitrijs2005/postkeeper/internal/dbx"
	"github.com/dmitrijs2005/postkeeper/internal/filex"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/media"
	"github.com/dmitrijs2005/postkeeper/internal/publisher"
	"github.com/dmitrijs2005/postkeeper/internal/publisher/xapi"
	"github.com/dmitrijs2005/postkeeper/internal/repositories/posts"
	"github.com/dmitrijs2005/postkeeper/internal/webhook"
)

func openStore(ctx context.Context, cfg *config.Config) (posts.Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreFile:
		r, err := posts.NewFileRepository(cfg.PostsFile(), filex.LockOptions{})
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.StoreSQLite, config.StorePostgres:
		dialect, err := dbx.ParseDialect(cfg.StoreDriver)
		if err != nil {
			return nil, err
		}
		dsn := cfg.StoreDSN
		if dsn == "" {
			dir, err := filex.EnsureDir(cfg.DataDir)
			if err != nil {
				return nil, err
			}
			dsn = "file:" + filepath.Join(dir, "posts.db")
		}
		r, err := posts.OpenSQLRepository(ctx, dialect, dsn)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, func() error, error) {
	if cfg.CacheDriver != config.CacheRedis {
		return cache.NewMemoryCache(), nil, nil
	}
	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisCache(client, cache.DefaultKeyPrefix, cfg.CacheTTL.Duration), client.Close, nil
}

// newGateway returns the Slack gateway when a token is configured and the
// in-process gateway otherwise. The editor is nil without Slack.
func newGateway(cfg *config.Config, logger logging.Logger) (gateway.Gateway, webhook.Editor) {
	if cfg.SlackToken == "" {
		return gateway.NewLocal(logger.With("module", "gateway")), nil
	}
	g := gateway.NewSlack(cfg.SlackToken, cfg.SlackChannel, cfg.SlackAPIURL)
	return g, g
}

// newPublisher returns the X client when a bearer token is configured and
// the dry-run publisher otherwise.
func newPublisher(cfg *config.Config, logger logging.Logger) (publisher.Publisher, publisher.MentionSource) {
	if cfg.XBearerToken == "" {
		l := publisher.NewLog(logger.With("module", "publisher"))
		return l, l
	}
	c := xapi.NewClient(xapi.Config{
		BearerToken: cfg.XBearerToken,
		UserID:      cfg.XUserID,
		APIURL:      cfg.XAPIURL,
		UploadURL:   cfg.XUploadURL,
		Timeout:     cfg.XTimeout.Duration,
	}, publisher.NewFileCursor(cfg.MentionCursorFile()), logger.With("module", "x"))
	return c, c
}

func newOffloader(ctx context.Context, cfg *config.Config) (media.Offloader, error) {
	if cfg.S3Bucket == "" {
		return media.Noop{}, nil
	}
	return media.NewS3Offloader(ctx, media.S3Config{
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		URLExpiry: cfg.S3URLExpiry.Duration,
	})
}
