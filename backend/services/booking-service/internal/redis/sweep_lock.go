package redisstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepLockKey = "locks:expiry-sweep"

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a SET NX PX lock shared by sweeper replicas.
type SweepLock struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSweepLock returns a redis lock.
func NewSweepLock(client *redis.Client, logger *zap.Logger) *SweepLock {
	return &SweepLock{client: client, logger: logger}
}

// TryLock acquires the lock for ttl without waiting.
func (l *SweepLock) TryLock(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, sweepLockKey, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{sweepLockKey}, token).Err(); err != nil {
			l.logger.Warn("failed to release sweep lock", zap.Error(err))
		}
	}
	return release, true, nil
}
