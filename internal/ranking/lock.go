// Package ranking implements the leaderboard sync (§4.3), rank resolver
// (§4.4) and per-map lock registry (§4.5) — the contended critical-section
// heart of the core. Grounded on the teacher's
// LocalLeaderboardRankCache (server/leaderboard_rank_cache.go): a
// sync.RWMutex-guarded map keyed by leaderboard identity, generalized here
// from a rank cache into a semaphore registry, since this system keeps ranks
// in an external Redis-shaped store (internal/faststore) rather than an
// in-process skiplist.
package ranking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// lockAcquireTimeout is the hard-coded 10s bound of §4.5; not configurable
// by callers.
const lockAcquireTimeout = 10 * time.Second

type mapLock struct {
	sem      chan struct{}
	refCount atomic.Int32
}

// LockRegistry is the process-wide, in-memory mapping from map id to a
// single-permit critical section (§4.5). Distributed deployments must pin
// map ids to one instance or accept the self-healing semantics described in
// §4.3/§4.4.
type LockRegistry struct {
	logger *zap.Logger

	mu    sync.Mutex
	locks map[int32]*mapLock
}

func NewLockRegistry(logger *zap.Logger) *LockRegistry {
	return &LockRegistry{
		logger: logger,
		locks:  make(map[int32]*mapLock),
	}
}

// acquire returns the lock for mapID, creating it and bumping its refcount
// if needed. Caller must call release when done, even on timeout.
func (r *LockRegistry) acquire(mapID int32) *mapLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[mapID]
	if !ok {
		l = &mapLock{sem: make(chan struct{}, 1)}
		r.locks[mapID] = l
	}
	l.refCount.Inc()
	return l
}

// release drops the holder's reference; when the last holder drops it the
// entry is evicted (§4.5: "entries are reference-counted").
func (r *LockRegistry) release(mapID int32, l *mapLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.refCount.Dec() <= 0 {
		if cur, ok := r.locks[mapID]; ok && cur == l {
			delete(r.locks, mapID)
		}
	}
}

// evict forcibly drops mapID's registry entry when the current holder of it
// appears stuck, so the next caller starts from a fresh semaphore rather
// than queueing behind a wait that may never resolve.
func (r *LockRegistry) evict(mapID int32, l *mapLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.locks[mapID]; ok && cur == l {
		delete(r.locks, mapID)
	}
}

// WithMapLock runs body with exclusive access relative to other holders of
// mapID; different ids are independent (§4.5). Acquisition has a 10s bound;
// on timeout the entry is evicted and body runs anyway without the permit,
// after logging a warning — a liveness backstop, not a correctness
// guarantee (§4.5, §9: callers self-heal instead of relying on exclusivity).
//
// The lock is released regardless of how body exits, including panics or
// ctx cancellation partway through (§7: "the per-map lock is always
// released regardless of how the body exits").
func (r *LockRegistry) WithMapLock(ctx context.Context, mapID int32, body func(ctx context.Context) error) error {
	l := r.acquire(mapID)
	defer r.release(mapID, l)

	acquired := false
	timer := time.NewTimer(lockAcquireTimeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		acquired = true
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		r.logger.Warn("map lock acquisition timed out, evicting and proceeding without permit",
			zap.Int32("map_id", mapID), zap.Duration("wait", lockAcquireTimeout))
		r.evict(mapID, l)
	}

	if acquired {
		defer func() { <-l.sem }()
	}

	return body(ctx)
}
