package cmd

import (
	"context"
	"log/slog"

	"github.com/medwise/remedion/pkg/lock"
)

// NewInstanceLocker picks the recovery serialization backend. With a Redis
// URL the per-instance lease holds across processes; without one it is
// process-local.
func NewInstanceLocker(ctx context.Context, redisURL string, logger *slog.Logger) (lock.InstanceLocker, error) {
	if redisURL == "" {
		return lock.NewMemoryLocker(), nil
	}

	return lock.NewRedisLocker(ctx, redisURL, logger)
}
