package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Throttle limits how often an action may be requested for a key, e.g. a
// password reset email per username.
type Throttle interface {
	Allow(ctx context.Context, key string) error
}

func tooManyRequests() error {
	return newError(ErrTooManyRequests, "Request", "Too many requests. Please try again later.")
}

// RedisThrottle is a fixed-window counter shared by every replica.
type RedisThrottle struct {
	Client *redis.Client
	Scope  string
	Limit  int
	Window time.Duration
}

func NewRedisThrottle(client *redis.Client, scope string, limit int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{Client: client, Scope: scope, Limit: limit, Window: window}
}

func (t *RedisThrottle) key(k string) string {
	return "trackr:throttle:" + t.Scope + ":" + k
}

// Allow fails open when Redis is unreachable: losing the throttle is
// preferable to blocking account recovery. The counter and its expiry are
// written in one MULTI, and EXPIRE NX re-arms a key that lost its TTL.
func (t *RedisThrottle) Allow(ctx context.Context, key string) error {
	k := t.key(key)

	var incr *redis.IntCmd
	_, err := t.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, t.Window)
		return nil
	})
	if err != nil {
		slogx.FromContext(ctx).Warn("throttle unavailable", slog.String("scope", t.Scope), slog.Any("error", err))
		return nil
	}
	if incr.Val() > int64(t.Limit) {
		return tooManyRequests()
	}
	return nil
}

// MemoryThrottle has the same semantics as RedisThrottle for a single
// process.
type MemoryThrottle struct {
	Limit  int
	Window time.Duration
	Clock  clockwork.Clock

	mu      sync.Mutex
	windows map[string]throttleWindow
}

type throttleWindow struct {
	start time.Time
	count int
}

func NewMemoryThrottle(limit int, window time.Duration, clock clockwork.Clock) *MemoryThrottle {
	return &MemoryThrottle{
		Limit:   limit,
		Window:  window,
		Clock:   clockOrReal(clock),
		windows: make(map[string]throttleWindow),
	}
}

func (t *MemoryThrottle) Allow(ctx context.Context, key string) error {
	now := t.Clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[key]
	if !ok || now.Sub(w.start) >= t.Window {
		w = throttleWindow{start: now}
		t.prune(now)
	}
	w.count++
	t.windows[key] = w

	if w.count > t.Limit {
		return tooManyRequests()
	}
	return nil
}

// prune drops closed windows. Called with mu held.
func (t *MemoryThrottle) prune(now time.Time) {
	for k, w := range t.windows {
		if now.Sub(w.start) >= t.Window {
			delete(t.windows, k)
		}
	}
}

// noThrottle allows everything.
type noThrottle struct{}

func (noThrottle) Allow(context.Context, string) error { return nil }
