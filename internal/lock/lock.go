package redlock

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
)

// Locker is a leased named mutex backed by Redis. The value identifies the
// holder so that only the owner can unlock or extend the lease; the TTL
// guarantees a crashed holder cannot deadlock the key.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

func (l *Locker) Key() string {
	return l.key
}

// Lock attempts a single acquisition of the lease for ttl. It fails fast with
// LOCK_UNAVAILABLE when another holder owns the key, so callers can report
// "already in progress" instead of blocking.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("acquiring lock for key %s", l.key), err)
	}
	if !success {
		return apierror.NewAPIError(apierror.ErrLockUnavailable, fmt.Sprintf("lock for key %s is already held", l.key), nil)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// WaitLock retries acquisition with jittered backoff until waitTimeout
// elapses, then surfaces the final LOCK_UNAVAILABLE to the caller.
func (l *Locker) WaitLock(ctx context.Context, lockTTL, waitTimeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = waitTimeout

	err := backoff.Retry(func() error {
		lockErr := l.Lock(ctx, lockTTL)
		if lockErr == nil {
			return nil
		}
		if apierror.Is(lockErr, apierror.ErrLockUnavailable) {
			return lockErr
		}
		return backoff.Permanent(lockErr)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrLockUnavailable,
			fmt.Sprintf("failed to acquire lock for key %s within the wait timeout", l.key), err)
	}
	return nil
}
