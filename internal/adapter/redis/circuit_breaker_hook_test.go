package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
)

func TestCircuitBreakerHook_NormalOperation(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	for range 10 {
		assert.NoError(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}

	assert.False(t, hook.IsOpen())
}

func TestCircuitBreakerHook_NilIsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "missing")), goredis.Nil)
	}

	assert.False(t, hook.IsOpen())
}

func TestCircuitBreakerHook_OpensAfterSustainedFailures(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(m)
	ctx := context.Background()
	calls := 0

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		calls++
		return errors.New("connection refused")
	})
	for range 5 {
		_ = process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
	}

	assert.True(t, hook.IsOpen())
	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.BreakerState) == 2 }, time.Second, 5*time.Millisecond)

	err := process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls, "open breaker must not reach Redis")

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })
	assert.ErrorIs(t, pipeline(ctx, nil), circuitbreaker.ErrOpen)
}
