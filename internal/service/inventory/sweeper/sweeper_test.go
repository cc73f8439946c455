package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/zookeeper"
)

type fakeManager struct {
	calls atomic.Int32
	ids   []string
	err   error
}

func (f *fakeManager) SweepExpired(context.Context, time.Time) ([]string, error) {
	f.calls.Add(1)
	return f.ids, f.err
}

func (f *fakeManager) Now() time.Time { return time.Unix(0, 0).UTC() }

func TestSweepOnceNotifiesReleasedGroups(t *testing.T) {
	m := &fakeManager{ids: []string{"g1", "g2"}}
	var got []string
	s := New(m, nil, time.Second, func(_ context.Context, ids []string) error {
		got = ids
		return nil
	})

	ids, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
	assert.Equal(t, ids, got)
}

func TestSweepOnceSkipsWhenLockHeld(t *testing.T) {
	lock := &zookeeper.LocalLock{}
	require.NoError(t, lock.Lock(context.Background()))

	m := &fakeManager{ids: []string{"g1"}}
	s := New(m, lock, 20*time.Millisecond, nil)

	ids, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, m.calls.Load())
}

func TestSweepOnceReleasesLockOnError(t *testing.T) {
	lock := &zookeeper.LocalLock{}
	m := &fakeManager{err: errors.New("db down")}
	s := New(m, lock, time.Second, nil)

	_, err := s.SweepOnce(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, lock.Lock(ctx), "lock must be free after a failed sweep")
}

func TestRunStopsOnCancel(t *testing.T) {
	m := &fakeManager{}
	s := New(m, nil, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return m.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
