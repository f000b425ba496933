// Package redislock implements a per-key lock shared across API replicas
// using SET NX with a TTL and a compare-and-delete release.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

var ErrNotAcquired = errors.New("lock not acquired")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
	log        *zap.Logger
	newToken   func() (string, error)
}

func New(client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Locker {
	return &Locker{
		client:     client,
		ttl:        ttl,
		retryDelay: 50 * time.Millisecond,
		log:        log,
		newToken:   func() (string, error) { return crypto.RandomToken(16) },
	}
}

// Lock retries until the key is acquired or ctx is done. The TTL bounds how
// long a crashed holder can block others.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := l.newToken()
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	redisKey := "lock:" + key

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}

	return func() {
		// The caller's ctx may already be cancelled; release must still run.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := releaseScript.Run(relCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
