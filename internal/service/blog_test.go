package service_test

import (
	"context"
	"sync"
	"testing"

	"dianping/internal/model"
	"dianping/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBlog(t *testing.T, e *env) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.User{ID: 1, Phone: phone, NickName: "作者", Icon: "a.png"}).Error)
	require.NoError(t, e.db.Create(&model.Blog{ID: 5, UserID: 1, ShopID: 1, Title: "好吃"}).Error)
}

func TestBlog_QueryFillsAuthor(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)
	seedBlog(t, e)

	b, err := e.blogs.QueryByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "作者", b.Name)
	assert.Equal(t, "a.png", b.Icon)
	assert.False(t, b.IsLike)

	_, err = e.blogs.QueryByID(context.Background(), 6)
	assert.ErrorIs(t, err, service.ErrBlogNotFound)
}

func TestBlog_LikeToggles(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)
	seedBlog(t, e)
	ctx := as(9)

	liked, err := e.blogs.Like(ctx, 5)
	require.NoError(t, err)
	assert.True(t, liked)

	b, err := e.blogs.QueryByID(ctx, 5)
	require.NoError(t, err)
	assert.True(t, b.IsLike)
	assert.Equal(t, int32(1), b.Liked)

	liked, err = e.blogs.Like(ctx, 5)
	require.NoError(t, err)
	assert.False(t, liked)

	b, err = e.blogs.QueryByID(ctx, 5)
	require.NoError(t, err)
	assert.False(t, b.IsLike)
	assert.Equal(t, int32(0), b.Liked)
	assert.False(t, e.mr.Exists("blog:liked:5"))
}

func TestBlog_LikeMissingOrAnonymous(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)

	_, err := e.blogs.Like(as(1), 404)
	assert.ErrorIs(t, err, service.ErrBlogNotFound)

	_, err = e.blogs.Like(context.Background(), 404)
	assert.Equal(t, service.KindUnauthorized, service.KindOf(err))
}

// 并发点赞后，点赞数与点赞集合的大小一致。
func TestBlog_ConcurrentLikesKeepCountConsistent(t *testing.T) {
	e := newEnv(t, service.StrategyPassThrough)
	seedBlog(t, e)

	var wg sync.WaitGroup
	for uid := int64(10); uid < 15; uid++ {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(uid int64) {
				defer wg.Done()
				_, err := e.blogs.Like(as(uid), 5)
				assert.NoError(t, err)
			}(uid)
		}
	}
	wg.Wait()

	var b model.Blog
	require.NoError(t, e.db.First(&b, 5).Error)
	members := 0
	if e.mr.Exists("blog:liked:5") {
		m, err := e.mr.Members("blog:liked:5")
		require.NoError(t, err)
		members = len(m)
	}
	assert.Equal(t, int32(members), b.Liked)
}
