package redis

import (
	"context"

	rd "github.com/redis/go-redis/v9"
)

// compensateScript 撤销一次资格：只有 SREM 真正移除了用户才回补库存，
// 因此重复调用不会多加库存。
var compensateScript = rd.NewScript(`
local stockKey = KEYS[1]
local orderKey = KEYS[2]
if redis.call('SREM', orderKey, ARGV[1]) == 1 then
  redis.call('INCR', stockKey)
  return 1
end
return 0
`)

// Compensate 回滚 Admit 的效果（入队失败等场景）：
// - 首次回滚返回 true
// - 用户不在集合中返回 false（不会重复加库存）
func Compensate(ctx context.Context, kv *KV, voucherID, userID int64) (bool, error) {
	n, err := kv.EvalInt(ctx, compensateScript, []string{StockKey(voucherID), OrderSetKey(voucherID)}, userID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
