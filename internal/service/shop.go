package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dianping/internal/cache"
	"dianping/internal/model"
	kv "dianping/pkg/redis"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Strategy 店铺缓存的读取策略。
type Strategy string

const (
	StrategyPassThrough Strategy = "passthrough"
	StrategyLogical     Strategy = "logical"
	StrategyMutex       Strategy = "mutex"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyPassThrough, StrategyLogical, StrategyMutex:
		return true
	}
	return false
}

type ShopService struct {
	db       *gorm.DB
	cache    *cache.Client
	strategy Strategy
	ttl      time.Duration
	log      logrus.FieldLogger
}

func NewShopService(db *gorm.DB, c *cache.Client, strategy Strategy, ttl time.Duration, log logrus.FieldLogger) *ShopService {
	if !strategy.Valid() {
		strategy = StrategyPassThrough
	}
	if ttl <= 0 {
		ttl = kv.CacheShopTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ShopService{db: db, cache: c, strategy: strategy, ttl: ttl, log: log.WithField("service", "shop")}
}

// load 是缓存未命中时的回源函数，不存在返回 nil。
func (s *ShopService) load(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	err := s.db.WithContext(ctx).First(&shop, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop %d: %w", id, err)
	}
	return &shop, nil
}

// QueryByID 按配置的策略读店铺。
func (s *ShopService) QueryByID(ctx context.Context, id int64) (*model.Shop, error) {
	if id <= 0 {
		return nil, ErrShopIDRequired
	}
	var (
		shop *model.Shop
		err  error
	)
	switch s.strategy {
	case StrategyLogical:
		shop, err = cache.QueryWithLogicalExpire(ctx, s.cache, kv.CacheShopKey, id, s.load, s.ttl)
	case StrategyMutex:
		shop, err = cache.QueryWithMutex(ctx, s.cache, kv.CacheShopKey, id, s.load, s.ttl)
	default:
		shop, err = cache.QueryWithPassThrough(ctx, s.cache, kv.CacheShopKey, id, s.load, s.ttl)
	}
	switch {
	case err == nil:
		return shop, nil
	case errors.Is(err, cache.ErrNotFound):
		return nil, ErrShopNotFound
	default:
		return nil, transient(err)
	}
}

// Update 先更新数据库再删缓存。逻辑过期策略的 key 没有 TTL，删掉后要立即重新预热。
func (s *ShopService) Update(ctx context.Context, shop *model.Shop) error {
	if shop == nil || shop.ID <= 0 {
		return ErrShopIDRequired
	}
	ctx = context.WithoutCancel(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Shop
		if err := tx.Select("id").First(&existing, shop.ID).Error; err != nil {
			return err
		}
		return tx.Model(&existing).Updates(shop).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrShopNotFound
	}
	if err != nil {
		return transient(err)
	}

	key := kv.CacheShopKey + strconv.FormatInt(shop.ID, 10)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Error("invalidate shop cache failed")
		return transient(err)
	}
	if s.strategy == StrategyLogical {
		return s.Warm(ctx, shop.ID)
	}
	return nil
}

// Warm 把店铺写成逻辑过期缓存，热点数据上线前调用。
func (s *ShopService) Warm(ctx context.Context, id int64) error {
	shop, err := s.load(ctx, id)
	if err != nil {
		return transient(err)
	}
	if shop == nil {
		return ErrShopNotFound
	}
	key := kv.CacheShopKey + strconv.FormatInt(id, 10)
	if err := s.cache.SetWithLogicalExpire(ctx, key, shop, s.ttl); err != nil {
		return transient(err)
	}
	return nil
}

// Strategy 当前生效的缓存策略。
func (s *ShopService) Strategy() Strategy { return s.strategy }
