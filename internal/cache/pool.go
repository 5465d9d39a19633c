package cache

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultRebuildWorkers 缓存重建并发上限。
const DefaultRebuildWorkers = 10

// RebuildPool 有界的后台重建执行器。满载时直接拒绝，不排队。
type RebuildPool struct {
	sem *semaphore.Weighted
	log logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRebuildPool(size int, log logrus.FieldLogger) *RebuildPool {
	if size <= 0 {
		size = DefaultRebuildWorkers
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RebuildPool{
		sem: semaphore.NewWeighted(int64(size)),
		log: log.WithField("component", "cache-rebuild"),
	}
}

// TrySubmit 把任务交给空闲 worker；池已满或已关闭时返回 false。
func (p *RebuildPool) TrySubmit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.sem.TryAcquire(1) {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.WithField("panic", r).Errorf("rebuild task panicked\n%s", debug.Stack())
			}
		}()
		task()
	}()
	return true
}

// Close 拒绝新任务并等待进行中的重建结束。
func (p *RebuildPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
