package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	kv "dianping/pkg/redis"

	"github.com/google/uuid"
)

// Store 把会话存成 login:user:{token} hash，TTL 每次访问后顺延。
type Store struct {
	kv *kv.KV
}

func NewStore(store *kv.KV) *Store {
	return &Store{kv: store}
}

// NewToken 生成 32 位十六进制的随机令牌。
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create 写入会话并返回令牌。
func (s *Store) Create(ctx context.Context, p Principal) (string, error) {
	token := NewToken()
	fields := map[string]string{
		"id":       strconv.FormatInt(p.ID, 10),
		"nickName": p.NickName,
		"icon":     p.Icon,
	}
	if err := s.kv.HPutAll(ctx, kv.LoginUserKeyOf(token), fields, kv.LoginUserTTL); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

// Load 读取会话。令牌不存在或已过期返回 ok=false。
func (s *Store) Load(ctx context.Context, token string) (Principal, bool, error) {
	m, err := s.kv.HGetAll(ctx, kv.LoginUserKeyOf(token))
	if err != nil {
		return Principal{}, false, err
	}
	if len(m) == 0 {
		return Principal{}, false, nil
	}
	id, err := strconv.ParseInt(m["id"], 10, 64)
	if err != nil {
		return Principal{}, false, fmt.Errorf("corrupt session %s: %w", token, err)
	}
	return Principal{ID: id, NickName: m["nickName"], Icon: m["icon"]}, true, nil
}

// Refresh 把 TTL 重置为 30 分钟。
func (s *Store) Refresh(ctx context.Context, token string) error {
	_, err := s.kv.Expire(ctx, kv.LoginUserKeyOf(token), kv.LoginUserTTL)
	return err
}

func (s *Store) Delete(ctx context.Context, token string) error {
	return s.kv.Del(ctx, kv.LoginUserKeyOf(token))
}
