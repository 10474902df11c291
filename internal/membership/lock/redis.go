package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rmr/pkg/platform/sentinel"
)

const (
	defaultTTL     = 30 * time.Second
	defaultRetry   = 50 * time.Millisecond
	redisKeyPrefix = "rmr:lock:"
	releaseTimeout = 2 * time.Second
)

// Only the token holder may delete or extend the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a lease lock shared by every instance using the same Redis. A held
// lease is extended in the background until released, so a long pass keeps
// its run lock; a crashed holder's lease expires after the TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

type RedisOption func(*Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(l *Redis) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *Redis) {
		if d > 0 {
			l.retry = d
		}
	}
}

func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *Redis) { l.logger = logger }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	l := &Redis{client: client, ttl: defaultTTL, retry: defaultRetry}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Redis) TryAcquire(ctx context.Context, key string) (Release, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.hold(key, token), true, nil
}

func (l *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		release, ok, err := l.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		}
	}
}

func (l *Redis) hold(key, token string) Release {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, token).Err(); err != nil {
				l.warn("failed to release lock", "key", key, "error", err)
			}
		})
	}
}

func (l *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			n, err := extendScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				l.warn("lock lease not extended", "key", key, "error", err)
			case n == 0:
				l.warn("lock lease lost", "key", key)
				return
			}
		}
	}
}

func (l *Redis) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
