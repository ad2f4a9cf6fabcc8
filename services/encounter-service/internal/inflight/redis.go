package inflight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

// releaseScript deletes the lock only when it still carries the caller's token, so an expired
// holder cannot release a lock that has since been taken by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares held keys across replicas. The TTL bounds how long a crashed holder can
// block an appointment.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

func NewRedisGuard(client redis.UniversalClient, opts RedisOptions) *RedisGuard {
	if opts.Prefix == "" {
		opts.Prefix = "clinicflow:inflight:"
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RedisGuard{client: client, prefix: opts.Prefix, ttl: opts.TTL, logger: opts.Logger}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := g.prefix + key

	ok, err := g.client.SetNX(ctx, lockKey, token, g.ttl).Result()
	if err != nil {
		return nil, clinicerr.FromTransport("inflight.acquire", err)
	}
	if !ok {
		return nil, clinicerr.InProgress(key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The holder's context may already be done; release must still reach redis.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, g.client, []string{lockKey}, token).Err(); err != nil {
				g.logger.Warn("inflight release failed", "key", key, "err", err)
			}
		})
	}, nil
}

// ReadyCheck pings the redis server backing the guard.
func ReadyCheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
