package service_test

import (
	"context"
	"testing"
	"time"

	"dianping/internal/cache"
	"dianping/internal/model"
	"dianping/internal/queue"
	"dianping/internal/service"
	"dianping/internal/session"
	"dianping/internal/testutil"
	kv "dianping/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	mr    *miniredis.Miniredis
	db    *gorm.DB
	kv    *kv.KV
	pool  *cache.RebuildPool
	queue *queue.MemoryQueue

	sessions *session.Store
	shops    *service.ShopService
	users    *service.UserService
	vouchers *service.VoucherService
	orders   *service.VoucherOrderService
	blogs    *service.BlogService
}

func newEnv(t *testing.T, strategy service.Strategy) *env {
	t.Helper()
	mr, store := testutil.NewRedis(t)
	db := testutil.NewDB(t)
	pool := cache.NewRebuildPool(cache.DefaultRebuildWorkers, nil)
	t.Cleanup(pool.Close)
	c := cache.NewClient(store, pool, nil)

	e := &env{
		mr: mr, db: db, kv: store, pool: pool,
		queue:    queue.NewMemoryQueue(1<<12, nil),
		sessions: session.NewStore(store),
	}
	e.shops = service.NewShopService(db, c, strategy, 30*time.Minute, nil)
	e.users = service.NewUserService(db, store, e.sessions, nil)
	e.vouchers = service.NewVoucherService(db, store, c, nil)
	e.orders = service.NewVoucherOrderService(db, store, kv.NewIDWorker(store), e.vouchers, e.queue, nil)
	e.blogs = service.NewBlogService(db, store, e.users, nil)
	return e
}

// as 以 uid 的身份发起请求。
func as(uid int64) context.Context {
	return session.WithPrincipal(context.Background(), session.Principal{ID: uid, NickName: "tester"})
}

// openVoucher 创建一张正在进行中的秒杀券。
func (e *env) openVoucher(t *testing.T, id int64, stock int32) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.vouchers.AddSeckillVoucher(context.Background(), &model.SeckillVoucher{
		VoucherID: id,
		Stock:     stock,
		BeginTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}))
}

// runWorker 启动订单 worker，测试结束时停止。
func (e *env) runWorker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.queue.Run(ctx, e.orders.HandleOrder)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}
