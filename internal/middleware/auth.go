package middleware

import (
	"net/http"
	"strings"

	"dianping/internal/model"
	"dianping/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HeaderToken 登录令牌所在的请求头。
const HeaderToken = "authorization"

// RefreshToken 对所有请求生效：有合法令牌就把用户放进请求上下文并顺延会话，
// 没有令牌或令牌失效则按匿名放行，是否必须登录交给 RequireLogin 判断。
func RefreshToken(store *session.Store, log logrus.FieldLogger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderToken))
		if token == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		p, ok, err := store.Load(ctx, token)
		if err != nil {
			log.WithError(err).WithField("path", c.FullPath()).Error("load session failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, model.Fail("服务繁忙，请稍后重试"))
			return
		}
		if !ok {
			c.Next()
			return
		}
		if err := store.Refresh(ctx, token); err != nil {
			// 续期失败不影响本次请求
			log.WithError(err).Warn("refresh session ttl failed")
		}
		c.Request = c.Request.WithContext(session.WithPrincipal(ctx, p))
		c.Next()
	}
}

// RequireLogin 未登录直接返回 401，不进入 handler。
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := session.Current(c.Request.Context()); !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// AdminToken 管理接口的简单令牌保护（demo 级别）。
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.Fail("admin token 无效"))
			return
		}
		c.Next()
	}
}
