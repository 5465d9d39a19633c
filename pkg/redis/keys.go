package redis

import (
	"fmt"
	"time"
)

// 键前缀与 TTL 统一约定，业务代码不要自行拼接。
const (
	CacheShopKey    = "cache:shop:"
	CacheVoucherKey = "cache:voucher:"
	LockKeyPrefix   = "lock:"
	LoginCodeKey    = "login:code:"
	LoginUserKey    = "login:user:"
	SeckillStockKey = "seckill:stock:"
	SeckillOrderKey = "seckill:order:"
	BlogLikedKey    = "blog:liked:"
	idCounterKey    = "icr:"
)

const (
	CacheShopTTL    = 30 * time.Minute
	CacheVoucherTTL = 10 * time.Minute
	// CacheNullTTL 是空值（穿透防护）的存活时间。
	CacheNullTTL = 2 * time.Minute
	LockTTL      = 10 * time.Second
	LoginCodeTTL = 2 * time.Minute
	LoginUserTTL = 30 * time.Minute
	idCounterTTL = 24 * time.Hour
)

// StockKey 秒杀券实时库存。
func StockKey(voucherID int64) string {
	return fmt.Sprintf("%s%d", SeckillStockKey, voucherID)
}

// OrderSetKey 记录已抢到某张券的用户集合。
func OrderSetKey(voucherID int64) string {
	return fmt.Sprintf("%s%d", SeckillOrderKey, voucherID)
}

// LoginCodeKeyOf 手机号对应的验证码。
func LoginCodeKeyOf(phone string) string {
	return LoginCodeKey + phone
}

// LoginUserKeyOf token 对应的会话 hash。
func LoginUserKeyOf(token string) string {
	return LoginUserKey + token
}

// BlogLikedKeyOf 点赞用户集合。
func BlogLikedKeyOf(blogID int64) string {
	return fmt.Sprintf("%s%d", BlogLikedKey, blogID)
}

// IDCounterKey 自增计数器，按天滚动。
func IDCounterKey(businessKey string, day time.Time) string {
	return idCounterKey + businessKey + ":" + day.Format("20060102")
}
