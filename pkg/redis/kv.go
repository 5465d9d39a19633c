package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// KV 是对 Redis 的薄封装，只暴露业务用到的命令。
// 缺失的 key 通过返回值区分，不以错误表达。
type KV struct {
	rdb rd.UniversalClient
}

// NewKV 包装已有客户端；连接池由调用方负责创建和关闭。
func NewKV(rdb rd.UniversalClient) *KV {
	return &KV{rdb: rdb}
}

// Client 返回底层客户端（Stream 等高级命令使用）。
func (k *KV) Client() rd.UniversalClient { return k.rdb }

// Get 读取字符串。ok=false 表示 key 不存在；空串也是 ok=true。
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set 写入字符串，ttl<=0 表示永不过期。
func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return k.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX 仅当 key 不存在时写入。
func (k *KV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return k.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (k *KV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return k.rdb.Del(ctx, keys...).Err()
}

// IncrWithTTL 在一个 MULTI 里自增并刷新 TTL。
func (k *KV) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := k.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Expire 刷新 TTL，key 不存在时返回 false。
func (k *KV) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return k.rdb.Expire(ctx, key, ttl).Result()
}

// HPutAll 在一个 MULTI 里写入整张 hash 并设置 TTL。
func (k *KV) HPutAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	values := make([]any, 0, len(fields)*2)
	for f, v := range fields {
		values = append(values, f, v)
	}
	pipe := k.rdb.TxPipeline()
	pipe.HSet(ctx, key, values...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HGetAll 读取整张 hash；key 不存在时返回空 map。
func (k *KV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return k.rdb.HGetAll(ctx, key).Result()
}

// SAdd 返回实际新增的成员数。
func (k *KV) SAdd(ctx context.Context, key string, members ...any) (int64, error) {
	return k.rdb.SAdd(ctx, key, members...).Result()
}

// SRem 返回实际删除的成员数。
func (k *KV) SRem(ctx context.Context, key string, members ...any) (int64, error) {
	return k.rdb.SRem(ctx, key, members...).Result()
}

func (k *KV) SIsMember(ctx context.Context, key string, member any) (bool, error) {
	return k.rdb.SIsMember(ctx, key, member).Result()
}

// EvalInt 执行脚本（EVALSHA，未缓存时回退 EVAL），返回整数结果。
func (k *KV) EvalInt(ctx context.Context, script *rd.Script, keys []string, args ...any) (int64, error) {
	return script.Run(ctx, k.rdb, keys, args...).Int64()
}
