package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dianping/internal/cache"
	"dianping/internal/database"
	"dianping/internal/model"
	kv "dianping/pkg/redis"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// stockGrace 库存 key 在活动结束后再保留一天，方便对账。
const stockGrace = 24 * time.Hour

type VoucherService struct {
	db    *gorm.DB
	kv    *kv.KV
	cache *cache.Client
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewVoucherService(db *gorm.DB, store *kv.KV, c *cache.Client, log logrus.FieldLogger) *VoucherService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VoucherService{db: db, kv: store, cache: c, log: log.WithField("service", "voucher"), now: time.Now}
}

// AddSeckillVoucher 新增秒杀券并把库存写入 Redis。
func (s *VoucherService) AddSeckillVoucher(ctx context.Context, v *model.SeckillVoucher) error {
	switch {
	case v == nil || v.VoucherID <= 0:
		return invalid("优惠券id不能为空!")
	case v.Stock <= 0:
		return invalid("库存必须大于0")
	case !v.EndTime.After(v.BeginTime):
		return invalid("结束时间必须晚于开始时间")
	case !v.EndTime.After(s.now()):
		return invalid("结束时间必须晚于当前时间")
	}
	ctx = context.WithoutCancel(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(v).Error
	})
	if database.IsUniqueViolation(err) {
		return ErrVoucherExists
	}
	if err != nil {
		return transient(err)
	}
	// 之前查过同一个 id 会留下空值缓存
	if err := s.cache.Invalidate(ctx, s.cacheKey(v.VoucherID)); err != nil {
		s.log.WithError(err).WithField("voucherId", v.VoucherID).Warn("invalidate voucher cache failed")
	}
	if err := s.setStock(ctx, v); err != nil {
		return transient(err)
	}
	s.log.WithFields(logrus.Fields{"voucherId": v.VoucherID, "stock": v.Stock}).Info("seckill voucher added")
	return nil
}

// Preload 用数据库库存重置 Redis 库存，返回写入的值。
func (s *VoucherService) Preload(ctx context.Context, voucherID int64) (int32, error) {
	v, err := s.load(ctx, voucherID)
	if err != nil {
		return 0, transient(err)
	}
	if v == nil {
		return 0, ErrVoucherMissing
	}
	if err := s.setStock(ctx, v); err != nil {
		return 0, transient(err)
	}
	return v.Stock, nil
}

func (s *VoucherService) setStock(ctx context.Context, v *model.SeckillVoucher) error {
	ttl := v.EndTime.Add(stockGrace).Sub(s.now())
	return s.kv.Set(ctx, kv.StockKey(v.VoucherID), strconv.FormatInt(int64(v.Stock), 10), ttl)
}

// Stock Redis 中的实时库存；key 不存在时为 0。
func (s *VoucherService) Stock(ctx context.Context, voucherID int64) (int64, error) {
	raw, ok, err := s.kv.Get(ctx, kv.StockKey(voucherID))
	if err != nil {
		return 0, transient(err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stock %q: %w", raw, err)
	}
	return n, nil
}

// Get 读取秒杀券元数据（开始/结束时间），走空值缓存。
func (s *VoucherService) Get(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	v, err := cache.QueryWithPassThrough(ctx, s.cache, kv.CacheVoucherKey, voucherID, s.load, kv.CacheVoucherTTL)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, cache.ErrNotFound):
		return nil, ErrVoucherMissing
	default:
		return nil, transient(err)
	}
}

func (s *VoucherService) load(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	var v model.SeckillVoucher
	err := s.db.WithContext(ctx).First(&v, "voucher_id = ?", voucherID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *VoucherService) cacheKey(voucherID int64) string {
	return kv.CacheVoucherKey + strconv.FormatInt(voucherID, 10)
}
