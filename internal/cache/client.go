// Package cache 实现店铺等热点数据的读穿透缓存。
//
// 三种策略共用一套 key 约定：
//   - QueryWithPassThrough：空值缓存防穿透，进程内 singleflight 合并并发回源；
//   - QueryWithLogicalExpire：数据永不过期，过期判断写在值里，过期后由后台重建，调用方拿旧值；
//   - QueryWithMutex：未命中时抢分布式锁回源，抢不到的短暂休眠后重试。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dianping/internal/metrics"
	kv "dianping/pkg/redis"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// NullValue 表示“数据库里确实没有”的空值标记。
const NullValue = ""

var (
	ErrNotFound = errors.New("cache: not found")
	ErrBusy     = errors.New("cache: rebuild busy, retry later")
)

const (
	defaultRetryInterval = 50 * time.Millisecond
	defaultMaxRetries    = 100
)

// Loader 从权威数据源加载数据，返回 nil 表示不存在。
type Loader[T any, ID comparable] func(ctx context.Context, id ID) (*T, error)

// Client 是缓存读写入口，可被多个 goroutine 同时使用。
type Client struct {
	kv   *kv.KV
	pool *RebuildPool
	log  logrus.FieldLogger
	sf   singleflight.Group

	now           func() time.Time
	retryInterval time.Duration
	maxRetries    int
}

func NewClient(store *kv.KV, pool *RebuildPool, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		kv:            store,
		pool:          pool,
		log:           log.WithField("component", "cache"),
		now:           time.Now,
		retryInterval: defaultRetryInterval,
		maxRetries:    defaultMaxRetries,
	}
}

// envelope 逻辑过期的存储格式，key 本身不设 TTL。
type envelope struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime time.Time       `json:"expireTime"`
}

// Set 以 JSON 写入并设置 TTL。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.kv.Set(ctx, key, string(b), ttl)
}

// SetWithLogicalExpire 写入带逻辑过期时间的值，过期时间为当前时间加 ttl。
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	b, err := json.Marshal(envelope{Data: data, ExpireTime: c.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.kv.Set(ctx, key, string(b), 0)
}

// Invalidate 删除缓存，写库成功后调用。
func (c *Client) Invalidate(ctx context.Context, key string) error {
	return c.kv.Del(ctx, key)
}

type lookupState int

const (
	stateMiss lookupState = iota
	stateNull
	stateHit
)

// lookup 读普通缓存。Redis 出错或反序列化失败都按未命中处理。
func lookup[T any](ctx context.Context, c *Client, key string) (*T, lookupState) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed, falling back to loader")
		return nil, stateMiss
	}
	if !ok {
		return nil, stateMiss
	}
	if raw == NullValue {
		return nil, stateNull
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache value undecodable")
		return nil, stateMiss
	}
	return &v, stateHit
}

// fill 把回源结果写回缓存；nil 写空值。写失败只记日志，不影响本次读。
func fill[T any](ctx context.Context, c *Client, key string, v *T, ttl time.Duration) {
	var err error
	if v == nil {
		err = c.kv.Set(ctx, key, NullValue, kv.CacheNullTTL)
	} else {
		err = c.Set(ctx, key, v, ttl)
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func cacheKey[ID comparable](prefix string, id ID) string {
	return prefix + fmt.Sprint(id)
}

// lockName cache:shop: + 42 -> shop:42，对应锁 key lock:shop:42。
func lockName[ID comparable](prefix string, id ID) string {
	return strings.TrimPrefix(prefix, "cache:") + fmt.Sprint(id)
}

// QueryWithPassThrough 读取 keyPrefix+id；不存在返回 ErrNotFound。
func QueryWithPassThrough[T any, ID comparable](ctx context.Context, c *Client, keyPrefix string, id ID, load Loader[T, ID], ttl time.Duration) (*T, error) {
	const strategy = "passthrough"
	key := cacheKey(keyPrefix, id)

	switch v, st := lookup[T](ctx, c, key); st {
	case stateHit:
		metrics.CacheRequests.WithLabelValues(strategy, "hit").Inc()
		return v, nil
	case stateNull:
		metrics.CacheRequests.WithLabelValues(strategy, "null").Inc()
		return nil, ErrNotFound
	}
	metrics.CacheRequests.WithLabelValues(strategy, "miss").Inc()

	// 回源与调用方的 ctx 解绑，先到的请求被取消时共享这次回源的请求照常拿结果
	bg := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		// 排队等锁期间可能已经有人回填
		switch v, st := lookup[T](bg, c, key); st {
		case stateHit:
			return v, nil
		case stateNull:
			return nil, ErrNotFound
		}
		v, err := load(bg, id)
		if err != nil {
			return nil, err
		}
		fill(bg, c, key, v, ttl)
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	// singleflight 的结果被多个调用方共享，给每人一份拷贝
	out := *res.Val.(*T)
	return &out, nil
}

// QueryWithLogicalExpire 读取逻辑过期缓存。key 不存在视为数据不存在（需预热）；
// 已过期时抢到锁的那个请求提交后台重建，所有请求都先返回旧值。
func QueryWithLogicalExpire[T any, ID comparable](ctx context.Context, c *Client, keyPrefix string, id ID, load Loader[T, ID], ttl time.Duration) (*T, error) {
	const strategy = "logical"
	key := cacheKey(keyPrefix, id)

	// 整个查询不阻塞，KV 交互都不随调用方取消
	bg := context.WithoutCancel(ctx)
	v, expireAt, ok := readEnvelope[T](bg, c, key)
	if !ok {
		metrics.CacheRequests.WithLabelValues(strategy, "miss").Inc()
		return nil, ErrNotFound
	}
	if c.now().Before(expireAt) {
		metrics.CacheRequests.WithLabelValues(strategy, "hit").Inc()
		return v, nil
	}
	metrics.CacheRequests.WithLabelValues(strategy, "stale").Inc()

	lock := kv.NewMutex(c.kv, lockName(keyPrefix, id))
	if !lock.TryLock(bg, kv.LockTTL) {
		return v, nil
	}
	// 拿到锁后再查一次，别人可能刚重建完
	if fresh, exp, ok := readEnvelope[T](bg, c, key); ok && c.now().Before(exp) {
		lock.Unlock(bg)
		return fresh, nil
	}

	submitted := c.pool.TrySubmit(func() {
		defer lock.Unlock(bg)
		fresh, err := load(bg, id)
		if err != nil {
			c.log.WithError(err).WithField("key", key).Error("cache rebuild failed")
			return
		}
		if fresh == nil {
			err = c.kv.Del(bg, key)
		} else {
			err = c.SetWithLogicalExpire(bg, key, fresh, ttl)
		}
		if err != nil {
			c.log.WithError(err).WithField("key", key).Error("cache rebuild write failed")
		}
	})
	if !submitted {
		lock.Unlock(bg)
		metrics.CacheRebuildRejected.Inc()
		c.log.WithField("key", key).Warn("rebuild pool saturated, serving stale")
	}
	return v, nil
}

func readEnvelope[T any](ctx context.Context, c *Client, key string) (*T, time.Time, bool) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return nil, time.Time{}, false
	}
	if !ok || raw == NullValue {
		return nil, time.Time{}, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache envelope undecodable")
		return nil, time.Time{}, false
	}
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache envelope data undecodable")
		return nil, time.Time{}, false
	}
	return &v, env.ExpireTime, true
}

// QueryWithMutex 未命中时用分布式锁保证同一时刻只有一个请求回源。
func QueryWithMutex[T any, ID comparable](ctx context.Context, c *Client, keyPrefix string, id ID, load Loader[T, ID], ttl time.Duration) (*T, error) {
	const strategy = "mutex"
	key := cacheKey(keyPrefix, id)
	lock := kv.NewMutex(c.kv, lockName(keyPrefix, id))

	for attempt := 0; ; attempt++ {
		switch v, st := lookup[T](ctx, c, key); st {
		case stateHit:
			metrics.CacheRequests.WithLabelValues(strategy, "hit").Inc()
			return v, nil
		case stateNull:
			metrics.CacheRequests.WithLabelValues(strategy, "null").Inc()
			return nil, ErrNotFound
		}
		if lock.TryLock(ctx, kv.LockTTL) {
			break
		}
		if attempt >= c.maxRetries {
			return nil, ErrBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
	bg := context.WithoutCancel(ctx)
	defer lock.Unlock(bg)
	metrics.CacheRequests.WithLabelValues(strategy, "miss").Inc()

	switch v, st := lookup[T](bg, c, key); st {
	case stateHit:
		return v, nil
	case stateNull:
		return nil, ErrNotFound
	}
	v, err := load(bg, id)
	if err != nil {
		return nil, err
	}
	fill(bg, c, key, v, ttl)
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}
