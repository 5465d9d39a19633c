// Package testutil 提供包级测试共用的 Redis / 数据库夹具。
package testutil

import (
	"testing"
	"time"

	"dianping/internal/database"
	kv "dianping/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewRedis 启动一个内存 Redis（支持 Lua 与 TTL 快进）。
func NewRedis(t testing.TB) (*miniredis.Miniredis, *kv.KV) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, kv.NewKV(rdb)
}

// NewDeadKV 返回一个连不上的 KV，用于模拟 Redis 不可用。
func NewDeadKV(t testing.TB) *kv.KV {
	t.Helper()
	rdb := rd.NewClient(&rd.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return kv.NewKV(rdb)
}

// NewDB 打开内存 SQLite 并建表。只保留一个连接，
// 否则每个连接都会看到一个独立的空库。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "连接测试数据库失败")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}
