package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamQueue(t *testing.T) (*miniredis.Miniredis, *StreamQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewStreamQueue(rdb, "stream.orders", "order-group", "worker-1", nil)
	q.block = 50 * time.Millisecond
	q.retryGap = 10 * time.Millisecond
	return mr, q
}

// runUntil 跑 consumer 直到 cond 成立，然后停止并等待退出。
func runUntil(t *testing.T, q *StreamQueue, h Handler, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx, h)
	}()
	assert.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
	cancel()
	wg.Wait()
}

func TestStreamQueue_DeliversAndAcks(t *testing.T) {
	_, q := newStreamQueue(t)
	ctx := context.Background()
	for uid := int64(1); uid <= 3; uid++ {
		require.NoError(t, q.Push(ctx, msgFor(uid)))
	}

	var mu sync.Mutex
	var got []OrderMessage
	runUntil(t, q, func(_ context.Context, m OrderMessage) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	assert.Equal(t, msgFor(1).OrderID, got[0].OrderID)
	assert.Equal(t, int64(10), got[0].VoucherID)
	n, err := q.rdb.XLen(ctx, q.stream).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "ACK 后消息应从 stream 删除")
}

func TestStreamQueue_FailedMessageIsRedelivered(t *testing.T) {
	_, q := newStreamQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, msgFor(1)))

	var attempts atomic.Int32
	runUntil(t, q, func(context.Context, OrderMessage) error {
		if attempts.Add(1) < 3 {
			return errors.New("db down")
		}
		return nil
	}, func() bool { return attempts.Load() >= 3 })

	n, err := q.rdb.XLen(ctx, q.stream).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamQueue_DropsMalformed(t *testing.T) {
	_, q := newStreamQueue(t)
	ctx := context.Background()
	require.NoError(t, q.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"orderId": "x"},
	}).Err())
	require.NoError(t, q.Push(ctx, msgFor(2)))

	var handled atomic.Int32
	runUntil(t, q, func(context.Context, OrderMessage) error {
		handled.Add(1)
		return nil
	}, func() bool { return handled.Load() == 1 })

	n, err := q.rdb.XLen(ctx, q.stream).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
