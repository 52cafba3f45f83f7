// Package lock provides per-key mutual exclusion for settlement runs, either
// inside one process or across processes through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/templui/goalstake/internal/config"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock held by another holder")

// Locker hands out exclusive, non-blocking locks keyed by name.
type Locker interface {
	// TryLock acquires key or returns ErrHeld. The returned context is done
	// once the lock is no longer held, and release gives it up.
	TryLock(ctx context.Context, key string) (held context.Context, release func(), err error)
}

// New returns a Redis-backed locker when REDIS_URL is set, otherwise an
// in-process one.
func New(cfg *config.Config) (Locker, error) {
	if cfg.RedisURL == "" {
		slog.Info("using in-process settlement lock")
		return NewLocal(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	slog.Info("using redis settlement lock", "addr", opts.Addr)
	return NewRedis(client, cfg.SettlementLockTTL), nil
}

type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, nil, ErrHeld
	}
	l.held[key] = struct{}{}

	held, cancel := context.WithCancel(ctx)
	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only if it still carries our token, so an
// expired lease never releases somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the key carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lease-based lock. The lease is extended every third of its TTL
// while held, so the TTL only bounds how long a crashed holder can block a
// cohort.
type Redis struct {
	client     *redis.Client
	ttl        time.Duration
	renewEvery time.Duration
	prefix     string
	// extend renews the lease and reports whether it was still ours.
	extend func(ctx context.Context, name, token string) (bool, error)
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	r := &Redis{client: client, ttl: ttl, renewEvery: ttl / 3, prefix: "goalstake:lock:"}
	r.extend = r.extendLease
	return r
}

func (r *Redis) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	token := uuid.NewString()
	name := r.prefix + key

	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil, ErrHeld
	}

	held, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go r.keepAlive(held, cancel, done, key, name, token)

	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := releaseScript.Run(ctx, r.client, []string{name}, token).Err()
			if err != nil {
				slog.Error("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive extends the lease until held is done. It cancels held once the
// lease is gone or could not be extended for a whole TTL.
func (r *Redis) keepAlive(held context.Context, lost context.CancelFunc, done chan<- struct{}, key, name, token string) {
	defer close(done)

	ticker := time.NewTicker(r.renewEvery)
	defer ticker.Stop()
	extended := time.Now()

	for {
		select {
		case <-held.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.renewEvery)
		ok, err := r.extend(ctx, name, token)
		cancel()

		switch {
		case err == nil && ok:
			extended = time.Now()
			continue
		case err == nil:
			slog.Error("lock lease lost", "key", key)
		case time.Since(extended) < r.ttl:
			slog.Warn("failed to extend lock, retrying", "key", key, "error", err)
			continue
		default:
			slog.Error("lock lease expired while redis was unreachable", "key", key, "error", err)
		}
		lost()
		return
	}
}

func (r *Redis) extendLease(ctx context.Context, name, token string) (bool, error) {
	n, err := extendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
