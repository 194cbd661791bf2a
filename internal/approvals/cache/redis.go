package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces approval entries in a shared redis.
const DefaultKeyPrefix = "postkeeper:approval:"

// redisClient is the subset of *redis.Client used by RedisCache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache shares entries between processes through redis. Values are
// JSON encoded entries; ttl 0 keeps them forever.
type RedisCache struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to redis and pings it.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, common.Collaborator("cache", fmt.Errorf("redis ping %s: %w", opts.Addr, err))
	}
	return client, nil
}

func NewRedisCache(client redisClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(approvalID string) string {
	return c.prefix + approvalID
}

func (c *RedisCache) Get(ctx context.Context, approvalID string) (Entry, bool, error) {
	data, err := c.client.Get(ctx, c.key(approvalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, common.Collaborator("cache", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// a broken entry is a miss; the store is consulted instead
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *RedisCache) Put(ctx context.Context, approvalID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(approvalID), data, c.ttl).Err(); err != nil {
		return common.Collaborator("cache", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, approvalID string) error {
	if err := c.client.Del(ctx, c.key(approvalID)).Err(); err != nil {
		return common.Collaborator("cache", err)
	}
	return nil
}
