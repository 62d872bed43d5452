package suppress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Opts holds configuration for the Redis-backed flag store.
type Opts struct {
	URL            string
	DebounceWindow time.Duration
}

// Option configures RedisFlags.
type Option func(*Opts)

// WithURL sets the Redis connection URL (redis://host:port/db).
func WithURL(u string) Option {
	return func(o *Opts) { o.URL = u }
}

// WithDebounceWindow overrides the active-conversation TTL.
func WithDebounceWindow(d time.Duration) Option {
	return func(o *Opts) { o.DebounceWindow = d }
}

// RedisFlags stores suppression flags in Redis using per-recipient keys:
// dnd:<recipient>, stop_campaign:<recipient>, active_conversation:<recipient>.
type RedisFlags struct {
	client   *redis.Client
	debounce time.Duration
}

// Compile-time check that RedisFlags implements Flags.
var _ Flags = (*RedisFlags)(nil)

// NewRedisFlags connects to Redis and verifies the connection.
func NewRedisFlags(ctx context.Context, opts ...Option) (*RedisFlags, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379/0"
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}

	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("suppress.NewRedisFlags: connected", "debounce_window", cfg.DebounceWindow)
	return &RedisFlags{client: client, debounce: cfg.DebounceWindow}, nil
}

func flagKey(reason, recipient string) string {
	return reason + ":" + recipient
}

// SetDND marks a permanent opt-out. No expiry.
func (f *RedisFlags) SetDND(ctx context.Context, recipient string) error {
	if err := f.client.Set(ctx, flagKey(ReasonDND, recipient), "1", 0).Err(); err != nil {
		return fmt.Errorf("set dnd flag for %s: %w", recipient, err)
	}
	slog.Info("suppress: dnd flag set", "recipient", recipient)
	return nil
}

// SetStopCampaign halts automated cadence sends. No expiry.
func (f *RedisFlags) SetStopCampaign(ctx context.Context, recipient string) error {
	if err := f.client.Set(ctx, flagKey(ReasonStopCampaign, recipient), "1", 0).Err(); err != nil {
		return fmt.Errorf("set stop_campaign flag for %s: %w", recipient, err)
	}
	slog.Info("suppress: stop_campaign flag set", "recipient", recipient)
	return nil
}

// MarkActiveConversation sets the debounce marker with the configured TTL.
func (f *RedisFlags) MarkActiveConversation(ctx context.Context, recipient string) error {
	if err := f.client.Set(ctx, flagKey(ReasonActiveConversation, recipient), "1", f.debounce).Err(); err != nil {
		return fmt.Errorf("set active_conversation flag for %s: %w", recipient, err)
	}
	return nil
}

// Suppressed checks the flags in fixed priority order: dnd, stop_campaign,
// active_conversation.
func (f *RedisFlags) Suppressed(ctx context.Context, recipient string) (bool, string, error) {
	for _, reason := range []string{ReasonDND, ReasonStopCampaign, ReasonActiveConversation} {
		n, err := f.client.Exists(ctx, flagKey(reason, recipient)).Result()
		if err != nil {
			return false, "", fmt.Errorf("check %s flag for %s: %w", reason, recipient, err)
		}
		if n > 0 {
			return true, reason, nil
		}
	}
	return false, "", nil
}

// Close releases the Redis connection.
func (f *RedisFlags) Close() error {
	return f.client.Close()
}
