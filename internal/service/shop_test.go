package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dianping/internal/model"
	"dianping/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedShop(t *testing.T, e *env, id int64, name string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Shop{ID: id, Name: name, Address: "某路 1 号"}).Error)
}

func TestShop_ColdReadPopulatesCache(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)
	ctx := context.Background()
	seedShop(t, e, 1, "茶餐厅")

	shop, err := e.shops.QueryByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "茶餐厅", shop.Name)

	raw, err := e.mr.Get("cache:shop:1")
	require.NoError(t, err)
	var cached model.Shop
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "茶餐厅", cached.Name)
	assert.Equal(t, 30*time.Minute, e.mr.TTL("cache:shop:1"))

	// 绕过服务直接改库，读到的仍是缓存
	require.NoError(t, e.db.Model(&model.Shop{}).Where("id = ?", 1).Update("name", "改名").Error)
	shop, err = e.shops.QueryByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "茶餐厅", shop.Name)
}

func TestShop_MissingShopWritesNullSentinel(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)

	_, err := e.shops.QueryByID(context.Background(), 999)
	assert.ErrorIs(t, err, service.ErrShopNotFound)
	assert.Equal(t, "店铺信息不存在", service.MessageOf(err))

	raw, err := e.mr.Get("cache:shop:999")
	require.NoError(t, err)
	assert.Equal(t, "", raw)
	assert.Equal(t, 2*time.Minute, e.mr.TTL("cache:shop:999"))
}

func TestShop_UpdateThenReadSeesNewValue(t *testing.T) {
	for _, strategy := range []service.Strategy{service.StrategyPassThrough, service.StrategyLogical, service.StrategyMutex} {
		t.Run(string(strategy), func(t *testing.T) {
			e := newEnv(t, strategy)
			ctx := context.Background()
			seedShop(t, e, 1, "旧店名")
			if strategy == service.StrategyLogical {
				require.NoError(t, e.shops.Warm(ctx, 1))
			}

			shop, err := e.shops.QueryByID(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, "旧店名", shop.Name)

			require.NoError(t, e.shops.Update(ctx, &model.Shop{ID: 1, Name: "新店名"}))

			shop, err = e.shops.QueryByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "新店名", shop.Name)
		})
	}
}

func TestShop_UpdateValidation(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)
	ctx := context.Background()

	assert.ErrorIs(t, e.shops.Update(ctx, &model.Shop{Name: "x"}), service.ErrShopIDRequired)
	assert.ErrorIs(t, e.shops.Update(ctx, &model.Shop{ID: 42, Name: "x"}), service.ErrShopNotFound)
}

func TestShop_LogicalRequiresWarmup(t *testing.T) {
	e := newEnv(t, service.StrategyLogical)
	seedShop(t, e, 1, "未预热")

	_, err := e.shops.QueryByID(context.Background(), 1)
	assert.ErrorIs(t, err, service.ErrShopNotFound)
	assert.Zero(t, e.mr.TTL("cache:shop:1"))
}

func TestShop_WarmMissing(t *testing.T) {
	e := newEnv(t, service.StrategyLogical)
	assert.ErrorIs(t, e.shops.Warm(context.Background(), 7), service.ErrShopNotFound)
}
