package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "remedion:recovery-lock:"

// releaseScript deletes the lease only when the caller still owns it, so a
// release arriving after the ttl expired cannot free someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements InstanceLocker on a shared Redis, which makes the
// per-instance recovery serialization hold across processes.
type RedisLocker struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisLocker connects to the Redis named by redisURL
// (redis://[user:pass@]host:port/db) and verifies the connection.
func NewRedisLocker(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis for instance locking", "addr", opts.Addr, "db", opts.DB)

	return &RedisLocker{
		client: client,
		logger: logger.With("module", "redis_locker"),
	}, nil
}

// TryAcquire takes the instance lease via SET NX PX. The lease value is a
// one-time token; release hands the token to an ownership-checked delete.
func (l *RedisLocker) TryAcquire(ctx context.Context, instanceID string, ttl time.Duration) (ReleaseFunc, bool, error) {
	key := keyPrefix + instanceID
	token := uuid.New().String()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock for instance %s: %w", instanceID, err)
	}

	if !acquired {
		return nil, false, nil
	}

	release := func(ctx context.Context) {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil {
			l.logger.ErrorContext(ctx, "Failed to release instance lock; lease will expire on its own",
				"instance_id", instanceID,
				"error", err)
		}
	}

	return release, true, nil
}

// Close releases the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
