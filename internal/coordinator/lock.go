package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
)

// RepoLocker acquires the repository-scoped advisory lock of §4.10.
// Acquisition uses a set-if-not-exists primitive (redsync on L2); when the
// Redis connection itself is unavailable, a local gofrs/flock lock is used
// instead so a single-process deployment still serializes destructive
// repository operations. Implementations must never block past ttl.
type RepoLocker interface {
	// TryLock attempts to acquire the lock for name, non-blocking.
	// ok=false with err=nil means the lock is held by someone else.
	TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error)
}

// RedsyncLocker is the primary, Redis-backed implementation, grounded on
// the teacher's FileLock pattern (internal/embedclient/lock.go) but
// generalized to a distributed, TTL-bounded mutex rather than a local
// file.
type RedsyncLocker struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

// NewRedsyncLocker builds a RepoLocker over an existing Redis client.
func NewRedsyncLocker(client *redis.Client, ttl time.Duration) *RedsyncLocker {
	if ttl <= 0 {
		ttl = RepoLockTTL
	}
	pool := goredis.NewPool(client)
	return &RedsyncLocker{rs: redsync.New(pool), ttl: ttl}
}

func (l *RedsyncLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	mutex := l.rs.NewMutex("repo-lock:"+name, redsync.WithExpiry(l.ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		if isLockTaken(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redsync lock %s: %w", name, err)
	}
	return func() {
		_, _ = mutex.UnlockContext(ctx) // best-effort; TTL reclaims on crash
	}, true, nil
}

// isLockTaken reports whether err indicates the mutex was already held
// by someone else (as opposed to a connectivity failure, which should
// fall back to the local locker).
func isLockTaken(err error) bool {
	var taken *redsync.ErrTaken
	return errors.As(err, &taken)
}

// FlockLocker is the local-process fallback used when Redis is
// unreachable, grounded on internal/embedclient/lock.go's FileLock.
type FlockLocker struct {
	dir string
	mu  sync.Mutex
}

// NewFlockLocker creates a fallback locker rooted at dir (one lock file
// per repository name, inside dir).
func NewFlockLocker(dir string) *FlockLocker {
	return &FlockLocker{dir: dir}
}

func (l *FlockLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.mu.Unlock()
		return nil, false, fmt.Errorf("create lock dir: %w", err)
	}
	l.mu.Unlock()

	path := filepath.Join(l.dir, sanitizeLockName(name)+".lock")
	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("flock %s: %w", name, err)
	}
	if !acquired {
		return nil, false, nil
	}
	return func() { _ = fl.Unlock() }, true, nil
}

func sanitizeLockName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// FallbackLocker tries primary first and falls back to secondary only on
// a connectivity error (not on "already held").
type FallbackLocker struct {
	primary   RepoLocker
	secondary RepoLocker
}

// NewFallbackLocker composes a primary (Redis) and secondary (local flock)
// locker per §4.10's resilience requirement.
func NewFallbackLocker(primary, secondary RepoLocker) *FallbackLocker {
	return &FallbackLocker{primary: primary, secondary: secondary}
}

func (l *FallbackLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	unlock, ok, err := l.primary.TryLock(ctx, name)
	if err == nil {
		return unlock, ok, nil
	}
	if l.secondary == nil {
		return nil, false, err
	}
	return l.secondary.TryLock(ctx, name)
}
