package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaQueue 把订单投递到 Kafka，由消费者组里的单个 worker 落库。
type KafkaQueue struct {
	w   *kafka.Writer
	r   *kafka.Reader
	log logrus.FieldLogger

	retryGap time.Duration
}

// NewKafkaQueue 创建生产者和消费者，生产者可靠性参数：
// - Hash + Key: 同一用户的订单落到同一分区，保持该用户内的顺序。
// - RequireAll: 等待 ISR 副本确认，降低消息丢失风险。
// - MaxAttempts/Timeout: 控制重试与超时边界。
func NewKafkaQueue(brokers []string, topic, groupID string, log logrus.FieldLogger) *KafkaQueue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KafkaQueue{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 10 * time.Millisecond,
		},
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1e6,
		}),
		log:      log.WithFields(logrus.Fields{"component": "order-kafka", "topic": topic}),
		retryGap: 500 * time.Millisecond,
	}
}

// Push 同步写入一条订单消息。
func (q *KafkaQueue) Push(ctx context.Context, msg OrderMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.UserID, 10)),
		Value: b,
	})
}

// Close 释放 writer 与 reader。
func (q *KafkaQueue) Close() error {
	werr := q.w.Close()
	if rerr := q.r.Close(); rerr != nil {
		return rerr
	}
	return werr
}
