package cron

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 15 * time.Minute

// Lock coordinates exclusive runs of one job across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds the lock guarding the named job. ttl bounds how long a
// crashed worker can keep the job blocked.
type LockFactory func(job string, ttl time.Duration) (Lock, error)

type lockStore interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
}

// jobLock is held by one sweep or payout run. Each Acquire mints a fresh owner
// token, so a run that overstayed its ttl cannot free the next run's lock.
type jobLock struct {
	store lockStore
	name  string
	ttl   time.Duration
	owner string
}

// RedisLocks scopes job locks to env so staging and production workers
// sharing a Redis never block each other.
func RedisLocks(store lockStore, env string) LockFactory {
	return func(job string, ttl time.Duration) (Lock, error) {
		if store == nil {
			return nil, errors.New("lock store is required")
		}
		if job == "" {
			return nil, errors.New("job name is required")
		}
		if ttl <= 0 {
			ttl = defaultLockTTL
		}
		if env == "" {
			env = "local"
		}
		return &jobLock{store: store, name: env + ":" + job, ttl: ttl}, nil
	}
}

func (l *jobLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.AcquireLock(ctx, l.name, owner, l.ttl)
	if err != nil || !ok {
		return false, err
	}
	l.owner = owner
	return true, nil
}

func (l *jobLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	_, err := l.store.ReleaseLock(ctx, l.name, owner)
	return err
}
