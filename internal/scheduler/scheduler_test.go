package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisadapter "github.com/kevin07696/checkout-reconciler/internal/adapters/redis"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
}

func (f *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (func(context.Context) error, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released++
		return nil
	}, true, nil
}

func TestScheduler_Add_Validates(t *testing.T) {
	s := New(nil, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))

	assert.Error(t, s.Add(Job{Interval: time.Second, Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "x", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "x", Interval: time.Second}))
	assert.NoError(t, s.Add(Job{Name: "x", Interval: time.Second, Run: func(context.Context) error { return nil }}))
}

func TestScheduler_Tick_RunsAndReleases(t *testing.T) {
	locker := &fakeLocker{}
	s := New(locker, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))
	var runs int
	job := Job{Name: "sweep", Interval: time.Minute, Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		runs++
		return nil
	}}

	s.tick(context.Background(), job)

	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, locker.released)
}

func TestScheduler_Tick_SkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{held: true}
	s := New(locker, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))
	var runs int

	s.tick(context.Background(), Job{Name: "sweep", Interval: time.Minute, Run: func(context.Context) error {
		runs++
		return nil
	}})

	assert.Zero(t, runs)
}

func TestScheduler_Tick_SkipsOnLockError(t *testing.T) {
	locker := &fakeLocker{err: errors.New("redis down")}
	s := New(locker, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))
	var runs int

	s.tick(context.Background(), Job{Name: "sweep", Interval: time.Minute, Run: func(context.Context) error {
		runs++
		return nil
	}})

	assert.Zero(t, runs)
}

func TestScheduler_Tick_ReleasesAfterFailure(t *testing.T) {
	locker := &fakeLocker{}
	s := New(locker, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))

	s.tick(context.Background(), Job{Name: "scan", Interval: time.Minute, Run: func(context.Context) error {
		return errors.New("query failed")
	}})

	assert.Equal(t, 1, locker.released)
}

func TestScheduler_LockTTL(t *testing.T) {
	s := New(nil, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))

	assert.Equal(t, time.Minute, s.lockTTL(Job{Interval: time.Minute}))
	assert.Equal(t, 10*time.Second, s.lockTTL(Job{Interval: time.Second}))
}

func TestScheduler_StartAndShutdown(t *testing.T) {
	s := New(nil, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{Name: "expire", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestScheduler_TwoInstancesShareRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redisadapter.NewLocker(client, "test")
	a := New(locker, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))
	b := New(locker, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))

	var runs atomic.Int32
	entered := make(chan struct{})
	unblock := make(chan struct{})
	slow := Job{Name: "settlement_overdue", Interval: time.Minute, Run: func(context.Context) error {
		runs.Add(1)
		close(entered)
		<-unblock
		return nil
	}}
	fast := Job{Name: "settlement_overdue", Interval: time.Minute, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}

	done := make(chan struct{})
	go func() {
		a.tick(context.Background(), slow)
		close(done)
	}()
	<-entered

	b.tick(context.Background(), fast)
	assert.Equal(t, int32(1), runs.Load())

	close(unblock)
	<-done
	assert.False(t, mr.Exists("test:settlement_overdue"))

	b.tick(context.Background(), fast)
	assert.Equal(t, int32(2), runs.Load())
}
