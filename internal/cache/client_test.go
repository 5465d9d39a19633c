package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dianping/internal/testutil"
	kv "dianping/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

const prefix = "cache:item:"

func newClient(t *testing.T, workers int) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, store := testutil.NewRedis(t)
	pool := NewRebuildPool(workers, nil)
	t.Cleanup(pool.Close)
	return mr, NewClient(store, pool, nil)
}

// countingLoader 记录回源次数，names 里没有的 id 视为不存在。
func countingLoader(calls *atomic.Int32, names map[int64]string, delay time.Duration) Loader[item, int64] {
	return func(ctx context.Context, id int64) (*item, error) {
		calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		name, ok := names[id]
		if !ok {
			return nil, nil
		}
		return &item{ID: id, Name: name}, nil
	}
}

func TestPassThrough_HitAfterFirstLoad(t *testing.T) {
	mr, c := newClient(t, 1)
	ctx := context.Background()
	var calls atomic.Int32
	load := countingLoader(&calls, map[int64]string{1: "a"}, 0)

	for i := 0; i < 3; i++ {
		v, err := QueryWithPassThrough(ctx, c, prefix, int64(1), load, 30*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "a", v.Name)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 30*time.Minute, mr.TTL("cache:item:1"))
}

func TestPassThrough_NullSentinel(t *testing.T) {
	mr, c := newClient(t, 1)
	ctx := context.Background()
	var calls atomic.Int32
	load := countingLoader(&calls, nil, 0)

	_, err := QueryWithPassThrough(ctx, c, prefix, int64(404), load, 30*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := mr.Get("cache:item:404")
	require.NoError(t, err)
	assert.Equal(t, NullValue, raw)
	assert.Equal(t, kv.CacheNullTTL, mr.TTL("cache:item:404"))

	_, err = QueryWithPassThrough(ctx, c, prefix, int64(404), load, 30*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load(), "空值命中不应再回源")

	// 空值过期后重新回源
	mr.FastForward(kv.CacheNullTTL + time.Second)
	_, err = QueryWithPassThrough(ctx, c, prefix, int64(404), load, 30*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPassThrough_ConcurrentMissesShareOneLoad(t *testing.T) {
	_, c := newClient(t, 1)
	ctx := context.Background()
	var calls atomic.Int32
	load := countingLoader(&calls, map[int64]string{1: "a"}, 50*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := QueryWithPassThrough(ctx, c, prefix, int64(1), load, time.Minute)
			if assert.NoError(t, err) {
				assert.Equal(t, "a", v.Name)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

// 先到的请求断开后，共享同一次回源的请求仍然拿到结果，回源结果照常回填。
func TestPassThrough_CancelledLeaderDoesNotFailFollowers(t *testing.T) {
	mr, c := newClient(t, 1)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context, id int64) (*item, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &item{ID: id, Name: "a"}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := QueryWithPassThrough(leaderCtx, c, prefix, int64(1), load, time.Minute)
		leaderErr <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	type result struct {
		v   *item
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := QueryWithPassThrough(context.Background(), c, prefix, int64(1), load, time.Minute)
		follower <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	r := <-follower
	require.NoError(t, r.err)
	assert.Equal(t, "a", r.v.Name)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("cache:item:1"))
}

func TestPassThrough_UndecodableValueIsMiss(t *testing.T) {
	mr, c := newClient(t, 1)
	var calls atomic.Int32
	require.NoError(t, mr.Set("cache:item:1", "{not json"))

	v, err := QueryWithPassThrough(context.Background(), c, prefix, int64(1),
		countingLoader(&calls, map[int64]string{1: "a"}, 0), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a", v.Name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPassThrough_RedisDownFallsBackToLoader(t *testing.T) {
	c := NewClient(testutil.NewDeadKV(t), NewRebuildPool(1, nil), nil)
	var calls atomic.Int32

	v, err := QueryWithPassThrough(context.Background(), c, prefix, int64(1),
		countingLoader(&calls, map[int64]string{1: "a"}, 0), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a", v.Name)
}

func TestPassThrough_LoaderErrorPropagates(t *testing.T) {
	_, c := newClient(t, 1)
	boom := errors.New("db down")
	_, err := QueryWithPassThrough(context.Background(), c, prefix, int64(1),
		func(context.Context, int64) (*item, error) { return nil, boom }, time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestLogical_AbsentKeyIsNotFound(t *testing.T) {
	_, c := newClient(t, 1)
	var calls atomic.Int32

	_, err := QueryWithLogicalExpire(context.Background(), c, prefix, int64(1),
		countingLoader(&calls, map[int64]string{1: "a"}, 0), time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, calls.Load(), "逻辑过期策略不负责冷启动")
}

func TestLogical_FreshHitHasNoTTL(t *testing.T) {
	mr, c := newClient(t, 1)
	ctx := context.Background()
	var calls atomic.Int32

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:item:1", item{ID: 1, Name: "a"}, time.Minute))
	assert.Zero(t, mr.TTL("cache:item:1"))

	v, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), countingLoader(&calls, nil, 0), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a", v.Name)
	assert.Zero(t, calls.Load())
}

// 50 个并发请求命中同一个过期值：只重建一次，所有人拿到旧值。
func TestLogical_StaleServesOldAndRebuildsOnce(t *testing.T) {
	mr, c := newClient(t, DefaultRebuildWorkers)
	ctx := context.Background()
	var calls atomic.Int32
	load := countingLoader(&calls, map[int64]string{1: "new"}, 20*time.Millisecond)

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:item:1", item{ID: 1, Name: "old"}, -time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), load, time.Minute)
			if assert.NoError(t, err) {
				assert.Equal(t, "old", v.Name)
			}
		}()
	}
	wg.Wait()
	c.pool.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, mr.Exists("lock:item:1"), "重建结束后锁必须释放")

	v, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), load, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "new", v.Name)
}

func TestLogical_SaturatedPoolServesStaleAndUnlocks(t *testing.T) {
	mr, c := newClient(t, 1)
	ctx := context.Background()
	var calls atomic.Int32

	release := make(chan struct{})
	defer close(release)
	require.True(t, c.pool.TrySubmit(func() { <-release }))

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:item:1", item{ID: 1, Name: "old"}, -time.Second))
	v, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), countingLoader(&calls, map[int64]string{1: "new"}, 0), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "old", v.Name)
	assert.False(t, mr.Exists("lock:item:1"))
	assert.Zero(t, calls.Load())
}

func TestLogical_CancelledCallerStillReleasesLock(t *testing.T) {
	mr, c := newClient(t, 1)
	var calls atomic.Int32

	release := make(chan struct{})
	defer close(release)
	require.True(t, c.pool.TrySubmit(func() { <-release }))

	require.NoError(t, c.SetWithLogicalExpire(context.Background(), "cache:item:1", item{ID: 1, Name: "old"}, -time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), countingLoader(&calls, map[int64]string{1: "new"}, 0), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "old", v.Name)
	assert.False(t, mr.Exists("lock:item:1"))
}

func TestLogical_RebuildOfDeletedRowRemovesKey(t *testing.T) {
	mr, c := newClient(t, 1)
	ctx := context.Background()
	var calls atomic.Int32

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:item:1", item{ID: 1, Name: "old"}, -time.Second))
	_, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), countingLoader(&calls, nil, 0), time.Minute)
	require.NoError(t, err)
	c.pool.Close()

	assert.False(t, mr.Exists("cache:item:1"))
	assert.False(t, mr.Exists("lock:item:1"))
}

func TestLogical_RebuildSurvivesCallerCancel(t *testing.T) {
	_, c := newClient(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:item:1", item{ID: 1, Name: "old"}, -time.Second))
	load := func(ctx context.Context, id int64) (*item, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &item{ID: id, Name: "new"}, nil
	}
	_, err := QueryWithLogicalExpire(ctx, c, prefix, int64(1), load, time.Minute)
	require.NoError(t, err)
	cancel()
	c.pool.Close()

	v, err := QueryWithLogicalExpire(context.Background(), c, prefix, int64(1), load, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "new", v.Name)
}

func TestMutex_ConcurrentMissesLoadOnce(t *testing.T) {
	mr, c := newClient(t, 1)
	c.retryInterval = 5 * time.Millisecond
	ctx := context.Background()
	var calls atomic.Int32
	load := countingLoader(&calls, map[int64]string{1: "a"}, 30*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := QueryWithMutex(ctx, c, prefix, int64(1), load, time.Minute)
			if assert.NoError(t, err) {
				assert.Equal(t, "a", v.Name)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, mr.Exists("lock:item:1"))
}

func TestMutex_BusyAfterRetries(t *testing.T) {
	mr, c := newClient(t, 1)
	c.retryInterval = time.Millisecond
	c.maxRetries = 3
	require.NoError(t, mr.Set("lock:item:1", "someone-else"))

	var calls atomic.Int32
	_, err := QueryWithMutex(context.Background(), c, prefix, int64(1), countingLoader(&calls, nil, 0), time.Minute)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, calls.Load())
}

func TestMutex_NullSentinel(t *testing.T) {
	mr, c := newClient(t, 1)
	var calls atomic.Int32

	_, err := QueryWithMutex(context.Background(), c, prefix, int64(9), countingLoader(&calls, nil, 0), time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
	raw, _ := mr.Get("cache:item:9")
	assert.Equal(t, NullValue, raw)
}

func TestInvalidate(t *testing.T) {
	mr, c := newClient(t, 1)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "cache:item:1", item{ID: 1}, time.Minute))
	require.NoError(t, c.Invalidate(ctx, "cache:item:1"))
	assert.False(t, mr.Exists("cache:item:1"))
}
