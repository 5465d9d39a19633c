package redis

import (
	"context"
	"fmt"
	"time"
)

const (
	// idEpoch 2022-01-01 00:00:00 UTC。
	idEpoch   int64 = 1640995200
	countBits       = 32
	maxCount  int64 = 1 << countBits
)

// IDWorker 生成全局唯一 ID：高 32 位为相对秒数，低 32 位为当天自增序号。
type IDWorker struct {
	kv  *KV
	now func() time.Time
}

func NewIDWorker(kv *KV) *IDWorker {
	return &IDWorker{kv: kv, now: time.Now}
}

// NextID 为 businessKey 生成下一个 ID。
func (w *IDWorker) NextID(ctx context.Context, businessKey string) (int64, error) {
	now := w.now().UTC()
	ts := now.Unix() - idEpoch

	key := IDCounterKey(businessKey, now)
	// 每次发号都刷新 TTL，日 key 在当天最后一次发号后 24 小时过期
	count, err := w.kv.IncrWithTTL(ctx, key, idCounterTTL)
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count >= maxCount {
		return 0, fmt.Errorf("id counter %s overflow", key)
	}
	return ts<<countBits | count, nil
}

// SplitID 拆出 ID 的时间戳与序号，便于排查。
func SplitID(id int64) (time.Time, int64) {
	return time.Unix(id>>countBits+idEpoch, 0).UTC(), id & (maxCount - 1)
}
