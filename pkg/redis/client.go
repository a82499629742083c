package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Every key this service writes lives under "cr:<family>:...".
const keyRoot = "cr"

const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyLock        = "lock"
)

var errNotConnected = errors.New("redis client not initialized")

type commands interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client is the narrow redis surface used for idempotency, rate limits and cron locks.
type Client struct {
	cmds commands
	conn *redis.Client
}

// IdempotencyStore is what replay guards need from redis.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New dials redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis connection established")
	}
	return &Client{cmds: conn, conn: conn}, nil
}

// buildOptions prefers CARRENTAL_REDIS_URL; pool and timeout settings fill whatever the URL left unset.
func buildOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fill(&opts.DialTimeout, cfg.DialTimeout)
	fill(&opts.ReadTimeout, cfg.ReadTimeout)
	fill(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fill[T int | time.Duration](dst *T, fallback T) {
	if *dst == 0 {
		*dst = fallback
	}
}

func (c *Client) ready() error {
	if c == nil || c.cmds == nil {
		return errNotConnected
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.cmds.Get(ctx, key).Result()
}

// SetNX writes value only when key is absent and reports whether it won.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.cmds.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL bumps a fixed-window counter. The window starts on the first hit.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	n, err := c.cmds.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := c.cmds.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmds.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(familyIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey(familyRateLimit, scope)
}

func (c *Client) LockKey(name string) string {
	return joinKey(familyLock, name)
}

func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyRoot)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
