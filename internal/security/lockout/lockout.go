// Package lockout throttles repeated failed signins for one account.
package lockout

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/tenantauth/pkg/cache"
)

// Guard counts failed signins per key inside a fixed window. Once the
// count reaches the limit, Check reports domain.ErrTooManyAttempts until
// the window expires or Reset is called.
type Guard interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string)
	Reset(ctx context.Context, key string)
}

// Key builds the guard key for an account. Email is case-folded so that
// spelling variants share a counter.
func Key(tenantID, email string) string {
	return "lockout:" + tenantID + ":" + strings.ToLower(strings.TrimSpace(email))
}

// Disabled never locks anything out.
type Disabled struct{}

func (Disabled) Check(context.Context, string) error   { return nil }
func (Disabled) RecordFailure(context.Context, string) {}
func (Disabled) Reset(context.Context, string)         {}

// MemoryGuard keeps counters in process memory.
type MemoryGuard struct {
	counts      *cache.Cache[int]
	maxFailures int
	window      time.Duration
}

func NewMemoryGuard(maxFailures int, window time.Duration) *MemoryGuard {
	return &MemoryGuard{counts: cache.New[int](), maxFailures: maxFailures, window: window}
}

func (g *MemoryGuard) Check(_ context.Context, key string) error {
	if g.maxFailures <= 0 {
		return nil
	}
	if n, ok := g.counts.Get(key); ok && n >= g.maxFailures {
		return domain.ErrTooManyAttempts
	}
	return nil
}

func (g *MemoryGuard) RecordFailure(_ context.Context, key string) {
	g.counts.Update(key, g.window, func(n int, _ bool) int { return n + 1 })
}

func (g *MemoryGuard) Reset(_ context.Context, key string) {
	g.counts.Delete(key)
}

// Sweep drops counters whose window has passed
func (g *MemoryGuard) Sweep() int {
	return g.counts.Purge()
}

// Counter is the slice of the Redis client the guard uses.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// RedisGuard shares counters across replicas. Redis errors and an open
// breaker fail open: signin proceeds and the failure is logged.
type RedisGuard struct {
	store       Counter
	breaker     *circuitbreaker.CircuitBreaker
	maxFailures int
	window      time.Duration
	logger      *slog.Logger
}

func NewRedisGuard(store Counter, breaker *circuitbreaker.CircuitBreaker, maxFailures int, window time.Duration, logger *slog.Logger) *RedisGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 1, 30*time.Second)
	}
	return &RedisGuard{
		store:       store,
		breaker:     breaker,
		maxFailures: maxFailures,
		window:      window,
		logger:      logger,
	}
}

func (g *RedisGuard) Check(ctx context.Context, key string) error {
	if g.maxFailures <= 0 {
		return nil
	}
	var n int64
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		n, err = g.store.GetInt(ctx, key)
		return err
	})
	if err != nil {
		g.logger.Warn("lockout check skipped", slog.String("error", err.Error()))
		return nil
	}
	if n >= int64(g.maxFailures) {
		return domain.ErrTooManyAttempts
	}
	return nil
}

func (g *RedisGuard) RecordFailure(ctx context.Context, key string) {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := g.store.IncrWithExpiry(ctx, key, g.window)
		return err
	})
	if err != nil {
		g.logger.Warn("lockout failure not recorded", slog.String("error", err.Error()))
	}
}

func (g *RedisGuard) Reset(ctx context.Context, key string) {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.store.Delete(ctx, key)
	})
	if err != nil {
		g.logger.Warn("lockout reset failed", slog.String("error", err.Error()))
	}
}
