package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	mock.ExpectSetNX("test-key", "test-value", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_AlreadyHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	mock.ExpectSetNX("test-key", "test-value", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.True(t, apierror.Is(err, apierror.ErrLockUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"test-key"}, "test-value").SetVal(int64(1))

	err := locker.Unlock(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_NotHolder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"test-key"}, "test-value").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key test-key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ExtendLock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	mock.ExpectEval(script, []string{"test-key"}, "test-value", "5000").SetVal(int64(1))

	err := locker.ExtendLock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLocker_WaitLock_AcquiresAfterRelease(t *testing.T) {
	mr, client := newMiniredisClient(t)

	holder := NewLocker(client, "job:recalc:42", "holder-a")
	require.NoError(t, holder.Lock(context.Background(), time.Minute))

	// Lease expiry frees the key mid-wait.
	go func() {
		time.Sleep(100 * time.Millisecond)
		mr.Del("job:recalc:42")
	}()

	waiter := NewLocker(client, "job:recalc:42", "holder-b")
	err := waiter.WaitLock(context.Background(), time.Minute, 2*time.Second)
	assert.NoError(t, err)

	val, err := client.Get(context.Background(), "job:recalc:42").Result()
	require.NoError(t, err)
	assert.Equal(t, "holder-b", val)
}

func TestLocker_WaitLock_TimesOut(t *testing.T) {
	_, client := newMiniredisClient(t)

	holder := NewLocker(client, "window:win_1", "holder-a")
	require.NoError(t, holder.Lock(context.Background(), time.Minute))

	waiter := NewLocker(client, "window:win_1", "holder-b")
	err := waiter.WaitLock(context.Background(), time.Minute, 300*time.Millisecond)
	assert.True(t, apierror.Is(err, apierror.ErrLockUnavailable))
}

func TestLocker_OnlyHolderCanUnlock(t *testing.T) {
	_, client := newMiniredisClient(t)

	holder := NewLocker(client, "biz:recon:b1", "holder-a")
	require.NoError(t, holder.Lock(context.Background(), time.Minute))

	intruder := NewLocker(client, "biz:recon:b1", "holder-b")
	assert.Error(t, intruder.Unlock(context.Background()))
	assert.NoError(t, holder.Unlock(context.Background()))
}
