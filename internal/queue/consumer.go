package queue

import (
	"context"
	"time"
)

// Run 逐条消费。handler 成功（或消息无法解析）后才提交 offset；
// 暂时性失败原地重试，保证同一分区内不跳过消息。
func (q *KafkaQueue) Run(ctx context.Context, h Handler) {
	for {
		m, err := q.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.WithError(err).Warn("fetch message failed")
			if !q.wait(ctx) {
				return
			}
			continue
		}

		msg, err := decodeJSON(m.Value)
		if err != nil {
			q.log.WithError(err).WithField("offset", m.Offset).Warn("drop malformed message")
		} else if !q.handleWithRetry(ctx, h, msg) {
			return
		}

		if err := q.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			q.log.WithError(err).WithField("offset", m.Offset).Error("commit offset failed")
		}
	}
}

// handleWithRetry 返回 false 表示 ctx 已结束，未处理的消息留给下次启动。
func (q *KafkaQueue) handleWithRetry(ctx context.Context, h Handler, msg OrderMessage) bool {
	for {
		err := safeHandle(ctx, h, msg, q.log)
		if err == nil {
			return true
		}
		q.log.WithError(err).WithField("orderId", msg.OrderID).Warn("handle order failed, retrying")
		if !q.wait(ctx) {
			return false
		}
	}
}

func (q *KafkaQueue) wait(ctx context.Context) bool {
	t := time.NewTimer(q.retryGap)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ OrderQueue = (*KafkaQueue)(nil)
