package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

// Keys live under "rw:<family>:...". Each family below backs exactly one
// payment concern; nothing else in the service touches Redis.
const (
	namespace = "rw"

	familyCheckoutReplay = "idempotency"
	familyRateWindow     = "rate_limit"
	familyWebhookEvent   = "webhook"
	familyCronLock       = "cron-worker:lock"
)

// rateWindowScript counts a hit and starts the window on the first one, in a
// single round trip so a crash between INCR and PEXPIRE cannot leave an
// immortal counter.
var rateWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return n
`)

// releaseLockScript deletes a lock only while the caller still owns it.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end
return 0
`)

// Client holds checkout replays, status-check rate windows, processed
// webhook events and cron job locks.
type Client struct {
	rdb *redis.Client
}

// New connects with the pool settings from cfg and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := NewFromClient(redis.NewClient(opts))
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connection established")
	}
	return client, nil
}

// NewFromClient wraps an existing connection.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	return opts, nil
}

func key(family string, parts ...string) string {
	segments := append([]string{namespace, family}, parts...)
	for i, s := range segments {
		segments[i] = strings.TrimSpace(s)
	}
	return strings.Join(segments, ":")
}

// LoadReplay returns the stored checkout response for idempotencyKey within
// scope. found is false when the key has not been used yet.
func (c *Client) LoadReplay(ctx context.Context, scope, idempotencyKey string) (payload []byte, found bool, err error) {
	payload, err = c.rdb.Get(ctx, key(familyCheckoutReplay, scope, idempotencyKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkout replay: %w", err)
	}
	return payload, true, nil
}

// StoreReplay records a checkout response unless a concurrent request with the
// same key already did; the first stored response wins.
func (c *Client) StoreReplay(ctx context.Context, scope, idempotencyKey string, payload []byte, ttl time.Duration) (bool, error) {
	stored, err := c.rdb.SetNX(ctx, key(familyCheckoutReplay, scope, idempotencyKey), payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store checkout replay: %w", err)
	}
	return stored, nil
}

// AllowInWindow counts one hit against scope and reports whether it is within
// limit for the current fixed window.
func (c *Client) AllowInWindow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := rateWindowScript.Run(ctx, c.rdb, []string{key(familyRateWindow, scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("count rate window: %w", err)
	}
	return count <= limit, count, nil
}

// ClaimEvent marks a provider event as being processed. It returns false when
// the event was already claimed within ttl.
func (c *Client) ClaimEvent(ctx context.Context, source, eventID string, ttl time.Duration) (bool, error) {
	claimed, err := c.rdb.SetNX(ctx, key(familyWebhookEvent, source, eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	return claimed, nil
}

// ReleaseEvent forgets a claim so the provider's redelivery is processed.
func (c *Client) ReleaseEvent(ctx context.Context, source, eventID string) error {
	if err := c.rdb.Del(ctx, key(familyWebhookEvent, source, eventID)).Err(); err != nil {
		return fmt.Errorf("release webhook event: %w", err)
	}
	return nil
}

// AcquireLock takes the named cron lock for owner until ttl elapses.
func (c *Client) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key(familyCronLock, name), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock frees the named lock if owner still holds it and reports
// whether anything was deleted.
func (c *Client) ReleaseLock(ctx context.Context, name, owner string) (bool, error) {
	deleted, err := releaseLockScript.Run(ctx, c.rdb, []string{key(familyCronLock, name)}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", name, err)
	}
	return deleted == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
