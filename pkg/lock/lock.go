// Package lock serializes recovery against individual workflow instances.
// A second error reported for an instance that is already mid-recovery must
// not interleave a second rollback; the error handler takes the instance
// lock before planning and rejects the request when it is held.
package lock

import (
	"context"
	"sync"
	"time"
)

// ReleaseFunc releases a held lock. Safe to call once; later calls are no-ops.
type ReleaseFunc func(ctx context.Context)

// InstanceLocker is the per-instance recovery lock. TryAcquire never blocks:
// acquired=false means another recovery holds the instance. The ttl bounds
// how long a crashed holder can keep the instance locked.
type InstanceLocker interface {
	TryAcquire(ctx context.Context, instanceID string, ttl time.Duration) (release ReleaseFunc, acquired bool, err error)
}

type memoryLease struct {
	token     uint64
	expiresAt time.Time
}

// MemoryLocker is the single-process locker used in development and tests.
// Multi-process deployments use the Redis locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	nextID uint64
	now    func() time.Time
}

// NewMemoryLocker creates an in-memory instance locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

// TryAcquire takes the lease for instanceID unless a live lease exists.
// Expired leases are treated as free: a holder that outlived its ttl has
// lost the lock and its release becomes a no-op.
func (m *MemoryLocker) TryAcquire(_ context.Context, instanceID string, ttl time.Duration) (ReleaseFunc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease, held := m.leases[instanceID]; held && m.now().Before(lease.expiresAt) {
		return nil, false, nil
	}

	m.nextID++
	token := m.nextID
	m.leases[instanceID] = memoryLease{token: token, expiresAt: m.now().Add(ttl)}

	release := func(_ context.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()

		// Only the holder that took this lease may free it; after expiry
		// someone else may already own the instance.
		if lease, held := m.leases[instanceID]; held && lease.token == token {
			delete(m.leases, instanceID)
		}
	}

	return release, true, nil
}

// Held reports whether a live lease exists for the instance.
func (m *MemoryLocker) Held(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease, held := m.leases[instanceID]

	return held && m.now().Before(lease.expiresAt)
}
