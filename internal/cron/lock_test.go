package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leaseStore struct {
	values   map[string]string
	released []string
	setErr   error
}

func newLeaseStore() *leaseStore {
	return &leaseStore{values: map[string]string{}}
}

func (s *leaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *leaseStore) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	s.released = append(s.released, token)
	if s.values[key] != token {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func TestRedisLockSingleHolder(t *testing.T) {
	ctx := context.Background()
	store := newLeaseStore()
	a, err := NewRedisLock(store, "sc:lock:cron:test", time.Minute)
	require.NoError(t, err)
	b, err := NewRedisLock(store, "sc:lock:cron:test", time.Minute)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx))
	assert.Empty(t, store.released, "a replica that never won must not touch the key")

	require.NoError(t, a.Release(ctx))
	require.Len(t, store.released, 1)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseAfterLeaseLost(t *testing.T) {
	ctx := context.Background()
	store := newLeaseStore()
	lock, err := NewRedisLock(store, "sc:lock:cron:test", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expired and another replica took it.
	store.values["sc:lock:cron:test"] = "someone-else"

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.values["sc:lock:cron:test"])
}

func TestRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newLeaseStore(), "", 0)
	require.Error(t, err)

	store := newLeaseStore()
	store.setErr = errors.New("connection refused")
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	_, err = lock.Acquire(context.Background())
	require.Error(t, err)
}
