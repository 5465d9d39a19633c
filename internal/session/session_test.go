package session_test

import (
	"context"
	"testing"
	"time"

	"dianping/internal/session"
	"dianping/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalContext(t *testing.T) {
	_, ok := session.Current(context.Background())
	assert.False(t, ok)

	ctx := session.WithPrincipal(context.Background(), session.Principal{ID: 3, NickName: "n"})
	p, ok := session.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.ID)
}

func TestStore_CreateLoad(t *testing.T) {
	mr, store := testutil.NewRedis(t)
	s := session.NewStore(store)
	ctx := context.Background()

	token, err := s.Create(ctx, session.Principal{ID: 42, NickName: "user_abc", Icon: "i.png"})
	require.NoError(t, err)
	assert.Len(t, token, 32)
	assert.Equal(t, 30*time.Minute, mr.TTL("login:user:"+token))
	assert.Equal(t, "42", mr.HGet("login:user:"+token, "id"))

	p, ok, err := s.Load(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session.Principal{ID: 42, NickName: "user_abc", Icon: "i.png"}, p)
}

func TestStore_SlidingExpiry(t *testing.T) {
	mr, store := testutil.NewRedis(t)
	s := session.NewStore(store)
	ctx := context.Background()

	token, err := s.Create(ctx, session.Principal{ID: 1})
	require.NoError(t, err)

	// 29 分钟时访问一次，TTL 回到 30 分钟
	mr.FastForward(29 * time.Minute)
	require.NoError(t, s.Refresh(ctx, token))
	assert.Equal(t, 30*time.Minute, mr.TTL("login:user:"+token))

	mr.FastForward(29 * time.Minute)
	_, ok, err := s.Load(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	// 再空闲超过 30 分钟即失效
	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Load(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	_, store := testutil.NewRedis(t)
	s := session.NewStore(store)
	ctx := context.Background()

	token, err := s.Create(ctx, session.Principal{ID: 1})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, token))

	_, ok, err := s.Load(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewToken_Unique(t *testing.T) {
	assert.NotEqual(t, session.NewToken(), session.NewToken())
}
