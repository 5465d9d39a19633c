package queue

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DefaultCapacity 内存队列容量 2^20。
const DefaultCapacity = 1 << 20

// MemoryQueue 进程内有界队列。进程崩溃时队列中的订单会丢失，
// 但 Redis 里的库存和下单记录已经扣过，需要对账补偿。
type MemoryQueue struct {
	ch  chan OrderMessage
	log logrus.FieldLogger
}

func NewMemoryQueue(capacity int, log logrus.FieldLogger) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MemoryQueue{
		ch:  make(chan OrderMessage, capacity),
		log: log.WithField("component", "order-queue"),
	}
}

// Push 非阻塞投递，队列满时返回 ErrQueueFull。
func (q *MemoryQueue) Push(_ context.Context, msg OrderMessage) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len 当前排队数量。
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Run 单 goroutine 消费；ctx 结束后把已排队的消息处理完再返回。
func (q *MemoryQueue) Run(ctx context.Context, h Handler) {
	for {
		select {
		case msg := <-q.ch:
			q.handle(ctx, h, msg)
		case <-ctx.Done():
			q.drain(context.WithoutCancel(ctx), h)
			return
		}
	}
}

func (q *MemoryQueue) drain(ctx context.Context, h Handler) {
	for {
		select {
		case msg := <-q.ch:
			q.handle(ctx, h, msg)
		default:
			return
		}
	}
}

func (q *MemoryQueue) handle(ctx context.Context, h Handler, msg OrderMessage) {
	if err := safeHandle(ctx, h, msg, q.log); err != nil {
		// 内存队列没有重投递，只能记录下来人工处理
		q.log.WithError(err).WithFields(logrus.Fields{
			"orderId":   msg.OrderID,
			"userId":    msg.UserID,
			"voucherId": msg.VoucherID,
		}).Error("handle order failed")
	}
}

func (q *MemoryQueue) Close() error { return nil }

var _ OrderQueue = (*MemoryQueue)(nil)
