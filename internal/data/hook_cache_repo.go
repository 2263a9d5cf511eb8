package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobforge/jobforge/internal/domain/model"
)

// HookMatchCache caches the set of hook IDs matching a (content type, action)
// pair in Redis. Hook tables are small but read on every tracked change, so
// the dispatcher consults the cache first and falls back to the database.
type HookMatchCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// DefaultHookMatchTTL bounds staleness when an invalidation is lost.
const DefaultHookMatchTTL = 5 * time.Minute

// NewHookMatchCache creates a HookMatchCache with the given Redis client. A
// non-positive ttl falls back to DefaultHookMatchTTL.
func NewHookMatchCache(client redis.UniversalClient, ttl time.Duration) *HookMatchCache {
	if ttl <= 0 {
		ttl = DefaultHookMatchTTL
	}
	return &HookMatchCache{client: client, ttl: ttl}
}

func hookMatchKey(contentType string, action model.ChangeAction) string {
	return fmt.Sprintf("jobforge:hookmatch:%s:%s", contentType, action)
}

// hookMatchVersionKey tracks a generation counter bumped on every hook write.
// Match entries embed the generation so a bump invalidates them all at once.
const hookMatchVersionKey = "jobforge:hookmatch:version"

type hookMatchEntry struct {
	Generation int64    `json:"generation"`
	HookIDs    []string `json:"hook_ids"`
}

// Get returns the cached hook IDs for the pair, or ok=false on a miss or a
// stale generation.
func (c *HookMatchCache) Get(ctx context.Context, contentType string, action model.ChangeAction) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, hookMatchKey(contentType, action)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry hookMatchEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, nil // treat a corrupt entry as a miss
	}

	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	if entry.Generation != gen {
		return nil, false, nil
	}
	return entry.HookIDs, true, nil
}

// Put stores the hook IDs for the pair at the current generation.
func (c *HookMatchCache) Put(ctx context.Context, contentType string, action model.ChangeAction, hookIDs []string) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	if hookIDs == nil {
		hookIDs = []string{}
	}
	raw, err := json.Marshal(hookMatchEntry{Generation: gen, HookIDs: hookIDs})
	if err != nil {
		return fmt.Errorf("marshal hook match entry: %w", err)
	}
	return c.client.Set(ctx, hookMatchKey(contentType, action), raw, c.ttl).Err()
}

// Invalidate bumps the generation, expiring every cached pair at once. Called
// after any hook create, update, or delete.
func (c *HookMatchCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, hookMatchVersionKey).Err(); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}

func (c *HookMatchCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, hookMatchVersionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// Health checks the Redis connection.
func (c *HookMatchCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewRedisClient creates a Redis client with the given configuration.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
