// Package queue 是准入请求和订单落库之间的交接队列。
// 生产端（HTTP 请求）只负责投递，单个后台 worker 串行消费。
package queue

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

var ErrQueueFull = errors.New("order queue is full")

// Handler 处理一条订单。返回错误表示暂时性失败，可重投递的后端会再次投递。
type Handler func(ctx context.Context, msg OrderMessage) error

// OrderQueue 的 Push 不阻塞调用方；Run 阻塞到 ctx 结束。
type OrderQueue interface {
	Push(ctx context.Context, msg OrderMessage) error
	Run(ctx context.Context, h Handler)
	Close() error
}

// safeHandle 调用 h 并把 panic 转成错误，保证 worker 循环不会退出。
func safeHandle(ctx context.Context, h Handler, msg OrderMessage, log logrus.FieldLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("order handler panicked\n%s", debug.Stack())
			err = nil
		}
	}()
	return h(ctx, msg)
}
