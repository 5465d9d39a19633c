package redis

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// unlockScript 仅当锁值等于持有者标识时才删除，避免误删别人刚抢到的锁。
var unlockScript = rd.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// 进程级随机前缀，启动时生成一次。
var ownerPrefix = strings.ReplaceAll(uuid.NewString(), "-", "")

var ownerSeq atomic.Int64

// Mutex 是基于 SET NX 的非阻塞分布式锁，不可重入。
// 每个 Mutex 句柄有独立的持有者标识，加锁和解锁可以发生在不同 goroutine。
type Mutex struct {
	kv    *KV
	key   string
	owner string
	log   logrus.FieldLogger
}

// NewMutex 创建名为 lock:{name} 的锁句柄。
func NewMutex(kv *KV, name string) *Mutex {
	key := LockKeyPrefix + name
	return &Mutex{
		kv:    kv,
		key:   key,
		owner: ownerPrefix + "-" + strconv.FormatInt(ownerSeq.Add(1), 10),
		log:   logrus.WithField("lock", key),
	}
}

func (m *Mutex) Key() string   { return m.key }
func (m *Mutex) Owner() string { return m.owner }

// TryLock 尝试加锁，不重试。Redis 出错视为未获取。
func (m *Mutex) TryLock(ctx context.Context, ttl time.Duration) bool {
	ok, err := m.kv.SetNX(ctx, m.key, m.owner, ttl)
	if err != nil {
		m.log.WithError(err).Warn("try lock failed")
		return false
	}
	return ok
}

// Unlock 原子地校验持有者并删除，不是持有者时什么也不做。
func (m *Mutex) Unlock(ctx context.Context) {
	if _, err := m.kv.EvalInt(ctx, unlockScript, []string{m.key}, m.owner); err != nil {
		m.log.WithError(err).Error("unlock script failed")
	}
}
