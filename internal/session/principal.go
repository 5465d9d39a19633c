// Package session 管理登录态：Redis 中的会话 hash 和请求上下文里的当前用户。
package session

import "context"

// Principal 是会话里保存的用户信息，不含手机号等敏感字段。
type Principal struct {
	ID       int64  `json:"id"`
	NickName string `json:"nickName"`
	Icon     string `json:"icon"`
}

type principalKey struct{}

// WithPrincipal 把当前用户挂到 ctx 上，只在本次请求内可见。
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Current 取当前用户，匿名请求返回 false。
func Current(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
