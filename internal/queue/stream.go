package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// StreamQueue 基于 Redis Stream + 消费者组。
// 语义：handler 成功后才 ACK，失败则留在 pending 里等待重试。
type StreamQueue struct {
	rdb rd.UniversalClient
	log logrus.FieldLogger

	stream   string
	group    string
	consumer string

	block    time.Duration
	retryGap time.Duration
}

func NewStreamQueue(rdb rd.UniversalClient, stream, group, consumer string, log logrus.FieldLogger) *StreamQueue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StreamQueue{
		rdb:      rdb,
		log:      log.WithFields(logrus.Fields{"component": "order-stream", "stream": stream}),
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    2 * time.Second,
		retryGap: 300 * time.Millisecond,
	}
}

func (q *StreamQueue) Push(ctx context.Context, msg OrderMessage) error {
	return q.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"orderId":   msg.OrderID,
			"userId":    msg.UserID,
			"voucherId": msg.VoucherID,
			"createdAt": msg.CreatedAt,
		},
	}).Err()
}

func (q *StreamQueue) Run(ctx context.Context, h Handler) {
	if err := q.ensureGroup(ctx); err != nil {
		q.log.WithError(err).Error("ensure consumer group failed")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		// 先处理本消费者历史 pending，避免遗留消息长期堆积。
		msgs, err := q.readGroup(ctx, "0", 0)
		if err == nil && len(msgs) == 0 {
			msgs, err = q.readGroup(ctx, ">", q.block)
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			q.log.WithError(err).Warn("read stream failed")
			q.sleep(ctx)
			continue
		}

		for _, xm := range msgs {
			if err := q.processOne(ctx, h, xm); err != nil {
				// 失败不 ACK，下一轮从 pending 重新读到
				q.log.WithError(err).WithField("id", xm.ID).Warn("process stream message failed")
				q.sleep(ctx)
				break
			}
		}
	}
}

func (q *StreamQueue) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(q.retryGap):
	}
}

func (q *StreamQueue) ensureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (q *StreamQueue) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	args := &rd.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, streamID},
		Count:    16,
		Block:    block,
	}
	if block == 0 {
		// 0 在 Redis 里表示永久阻塞，读 pending 时不需要阻塞
		args.Block = -1
	}
	streams, err := q.rdb.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []rd.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (q *StreamQueue) processOne(ctx context.Context, h Handler, xm rd.XMessage) error {
	msg, err := parseStreamMessage(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		q.log.WithError(err).WithField("id", xm.ID).Warn("drop malformed stream message")
		return q.ackAndDelete(ctx, xm.ID)
	}
	if err := safeHandle(ctx, h, msg, q.log); err != nil {
		return err
	}
	return q.ackAndDelete(ctx, xm.ID)
}

func (q *StreamQueue) ackAndDelete(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, id)
	pipe.XDel(ctx, q.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *StreamQueue) Close() error { return nil }

func parseStreamMessage(values map[string]any) (OrderMessage, error) {
	var msg OrderMessage
	fields := []struct {
		name string
		dst  *int64
	}{
		{"orderId", &msg.OrderID},
		{"userId", &msg.UserID},
		{"voucherId", &msg.VoucherID},
		{"createdAt", &msg.CreatedAt},
	}
	for _, f := range fields {
		s, err := getStreamString(values, f.name)
		if err != nil {
			return OrderMessage{}, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return OrderMessage{}, fmt.Errorf("invalid %s %q", f.name, s)
		}
		*f.dst = n
	}
	if err := msg.Validate(); err != nil {
		return OrderMessage{}, err
	}
	return msg, nil
}

func getStreamString(values map[string]any, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}

var _ OrderQueue = (*StreamQueue)(nil)
