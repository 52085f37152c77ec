package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
)

type mockHistoryStore struct {
	pruneFn func(ctx context.Context) (int64, error)
	calls   atomic.Int32
}

func (m *mockHistoryStore) PruneHistory(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	if m.pruneFn != nil {
		return m.pruneFn(ctx)
	}
	return 0, nil
}

type mockLeadership struct {
	tryAcquireFn func(ctx context.Context) (bool, error)
	renewFn      func(ctx context.Context) error
	releaseFn    func(ctx context.Context) error
}

func (m *mockLeadership) TryAcquire(ctx context.Context) (bool, error) {
	if m.tryAcquireFn != nil {
		return m.tryAcquireFn(ctx)
	}
	return true, nil
}

func (m *mockLeadership) Renew(ctx context.Context) error {
	if m.renewFn != nil {
		return m.renewFn(ctx)
	}
	return nil
}

func (m *mockLeadership) Release(ctx context.Context) error {
	if m.releaseFn != nil {
		return m.releaseFn(ctx)
	}
	return nil
}

func TestHistoryPruner_NoLeaderAlwaysPrunes(t *testing.T) {
	store := &mockHistoryStore{pruneFn: func(context.Context) (int64, error) { return 4, nil }}
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	p := NewHistoryPruner(store, nil, clockwork.NewFakeClock(), time.Minute, m)

	require.NoError(t, p.RunOnce(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, int32(2), store.calls.Load())
	assert.InDelta(t, 8, testutil.ToFloat64(m.HistoryPruned), 0)
}

func TestHistoryPruner_FollowerSkips(t *testing.T) {
	store := &mockHistoryStore{}
	leader := &mockLeadership{tryAcquireFn: func(context.Context) (bool, error) { return false, nil }}
	p := NewHistoryPruner(store, leader, clockwork.NewFakeClock(), time.Minute, nil)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Zero(t, store.calls.Load())
}

func TestHistoryPruner_LeaderRenewsInsteadOfAcquiring(t *testing.T) {
	var acquires, renews atomic.Int32
	leader := &mockLeadership{
		tryAcquireFn: func(context.Context) (bool, error) { acquires.Add(1); return true, nil },
		renewFn:      func(context.Context) error { renews.Add(1); return nil },
	}
	store := &mockHistoryStore{}
	p := NewHistoryPruner(store, leader, clockwork.NewFakeClock(), time.Minute, nil)

	for range 3 {
		require.NoError(t, p.RunOnce(context.Background()))
	}

	assert.Equal(t, int32(1), acquires.Load())
	assert.Equal(t, int32(2), renews.Load())
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestHistoryPruner_LostLeaseReacquires(t *testing.T) {
	var acquires atomic.Int32
	leader := &mockLeadership{
		tryAcquireFn: func(context.Context) (bool, error) { return acquires.Add(1) == 1, nil },
		renewFn:      func(context.Context) error { return ErrLeaseStolen },
	}
	store := &mockHistoryStore{}
	p := NewHistoryPruner(store, leader, clockwork.NewFakeClock(), time.Minute, nil)

	require.NoError(t, p.RunOnce(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, int32(2), acquires.Load())
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestHistoryPruner_Errors(t *testing.T) {
	errRedis := errors.New("redis down")
	leader := &mockLeadership{tryAcquireFn: func(context.Context) (bool, error) { return false, errRedis }}
	p := NewHistoryPruner(&mockHistoryStore{}, leader, clockwork.NewFakeClock(), time.Minute, nil)
	assert.ErrorIs(t, p.RunOnce(context.Background()), errRedis)

	errDB := errors.New("db down")
	store := &mockHistoryStore{pruneFn: func(context.Context) (int64, error) { return 0, errDB }}
	p = NewHistoryPruner(store, nil, clockwork.NewFakeClock(), time.Minute, nil)
	assert.ErrorIs(t, p.RunOnce(context.Background()), errDB)
}

func TestHistoryPruner_PrunesOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &mockHistoryStore{}
	p := NewHistoryPruner(store, nil, clock, time.Minute, nil)

	p.Start()
	defer p.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHistoryPruner_StopReleasesLease(t *testing.T) {
	var released atomic.Bool
	leader := &mockLeadership{releaseFn: func(context.Context) error { released.Store(true); return nil }}
	p := NewHistoryPruner(&mockHistoryStore{}, leader, clockwork.NewFakeClock(), time.Minute, nil)

	p.Start()
	require.NoError(t, p.RunOnce(context.Background()))
	p.Stop(context.Background())
	p.Stop(context.Background())

	assert.True(t, released.Load())
}

func TestHistoryPruner_StopWithoutLeaseSkipsRelease(t *testing.T) {
	leader := &mockLeadership{releaseFn: func(context.Context) error {
		t.Fatal("release must not be called")
		return nil
	}}
	p := NewHistoryPruner(&mockHistoryStore{}, leader, clockwork.NewFakeClock(), time.Minute, nil)
	p.Start()
	p.Stop(context.Background())
}
