package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes the key only while it still holds our token, so a lock
// that expired and was re-acquired elsewhere is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisInitiationLock implements InitiationLock with SET NX and a TTL.
type RedisInitiationLock struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisInitiationLock(client redis.UniversalClient, prefix string) *RedisInitiationLock {
	return &RedisInitiationLock{
		client: client,
		prefix: normalizeRedisPrefix(prefix) + ":lock",
	}
}

// Acquire takes the lock for ttl. When another holder owns it, acquired is false.
func (l *RedisInitiationLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := l.prefix + ":" + strings.TrimSpace(key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			log.Printf("level=warn component=initiation_lock msg=\"lock release failed\" key=%s err=%v", fullKey, err)
		}
	}
	return release, true, nil
}
