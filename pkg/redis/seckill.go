package redis

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// AdmitResult 是秒杀资格脚本的返回码。
type AdmitResult int64

const (
	Admitted  AdmitResult = 0
	NoStock   AdmitResult = 1
	Duplicate AdmitResult = 2
)

func (r AdmitResult) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case NoStock:
		return "no_stock"
	case Duplicate:
		return "duplicate"
	}
	return fmt.Sprintf("unknown(%d)", int64(r))
}

// seckillScript 原子完成「库存判断 → 一人一单判断 → 扣库存 → 记录下单用户」。
// KEYS[1]=库存key KEYS[2]=下单用户集合 ARGV[1]=userId
var seckillScript = rd.NewScript(`
local stockKey = KEYS[1]
local orderKey = KEYS[2]
local userId = ARGV[1]

if tonumber(redis.call('GET', stockKey) or '0') < 1 then
  return 1
end
if redis.call('SISMEMBER', orderKey, userId) == 1 then
  return 2
end
redis.call('DECR', stockKey)
redis.call('SADD', orderKey, userId)
return 0
`)

// Admit 执行秒杀资格判定，是下单与否的唯一裁决点。
func Admit(ctx context.Context, kv *KV, voucherID, userID int64) (AdmitResult, error) {
	n, err := kv.EvalInt(ctx, seckillScript, []string{StockKey(voucherID), OrderSetKey(voucherID)}, userID)
	if err != nil {
		return 0, err
	}
	res := AdmitResult(n)
	if res != Admitted && res != NoStock && res != Duplicate {
		return 0, fmt.Errorf("seckill script returned %d", n)
	}
	return res, nil
}
