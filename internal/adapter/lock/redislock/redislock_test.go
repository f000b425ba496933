package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T) (*Locker, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	l := New(db, 30*time.Second, zap.NewNop())
	l.retryDelay = time.Millisecond
	l.newToken = func() (string, error) { return "tok", nil }
	return l, mock
}

func TestLock_AcquireAndRelease(t *testing.T) {
	l, mock := newTestLocker(t)

	mock.ExpectSetNX("lock:booking:b1", "tok", 30*time.Second).SetVal(true)
	mock.ExpectEvalSha(releaseScript.Hash(), []string{"lock:booking:b1"}, "tok").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), "booking:b1")
	require.NoError(t, err)
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLock_RetriesWhileHeld(t *testing.T) {
	l, mock := newTestLocker(t)

	mock.ExpectSetNX("lock:booking:b1", "tok", 30*time.Second).SetVal(false)
	mock.ExpectSetNX("lock:booking:b1", "tok", 30*time.Second).SetVal(true)

	_, err := l.Lock(context.Background(), "booking:b1")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLock_GivesUpWhenContextDone(t *testing.T) {
	l, mock := newTestLocker(t)
	l.retryDelay = time.Hour

	mock.ExpectSetNX("lock:booking:b1", "tok", 30*time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Lock(ctx, "booking:b1")
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLock_RedisError(t *testing.T) {
	l, mock := newTestLocker(t)

	mock.ExpectSetNX("lock:booking:b1", "tok", 30*time.Second).SetErr(errors.New("connection refused"))

	_, err := l.Lock(context.Background(), "booking:b1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}
