package router

import (
	"net/http"
	"strconv"

	"dianping/internal/metrics"
	"dianping/internal/middleware"
	"dianping/internal/model"
	"dianping/internal/service"
	"dianping/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps 是注册路由所需的全部服务。
type Deps struct {
	Sessions *session.Store
	Shops    *service.ShopService
	Users    *service.UserService
	Vouchers *service.VoucherService
	Orders   *service.VoucherOrderService
	Blogs    *service.BlogService

	AdminToken string
	Log        logrus.FieldLogger
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	r.Use(middleware.RefreshToken(d.Sessions, d.Log))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	login := middleware.RequireLogin()
	admin := middleware.AdminToken(d.AdminToken)

	user := r.Group("/user")
	user.POST("/code", sendCode(d.Users, d.Log))
	user.POST("/login", userLogin(d.Users, d.Log))
	user.GET("/me", login, me())
	user.POST("/logout", login, logout(d.Users, d.Log))

	shop := r.Group("/shop")
	shop.GET("/:id", queryShop(d.Shops, d.Log))
	shop.PUT("", admin, updateShop(d.Shops, d.Log))
	shop.POST("/:id/warm", admin, warmShop(d.Shops, d.Log))

	voucher := r.Group("/voucher")
	voucher.POST("/seckill", admin, addSeckillVoucher(d.Vouchers, d.Log))
	voucher.POST("/seckill/:id/preload", admin, preloadStock(d.Vouchers, d.Log))
	voucher.GET("/seckill/:id/stock", getStock(d.Vouchers, d.Log))

	order := r.Group("/voucher-order", login)
	order.POST("/seckill/:id", seckillVoucher(d.Orders, d.Log))
	order.GET("/:id", queryOrder(d.Orders, d.Log))

	blog := r.Group("/blog")
	blog.GET("/:id", queryBlog(d.Blogs, d.Log))
	blog.PUT("/like/:id", login, likeBlog(d.Blogs, d.Log))
}

// respond 把业务错误映射成 HTTP 响应：业务失败仍是 200 + ok=false，
// 未登录 401 无响应体，依赖故障 503，其余 500。
func respond(c *gin.Context, log logrus.FieldLogger, data any, err error) {
	if err == nil {
		c.JSON(http.StatusOK, model.Ok(data))
		return
	}
	switch service.KindOf(err) {
	case service.KindValidation, service.KindNotFound, service.KindConflict:
		c.JSON(http.StatusOK, model.Fail(service.MessageOf(err)))
	case service.KindUnauthorized:
		c.AbortWithStatus(http.StatusUnauthorized)
	case service.KindTransient:
		log.WithError(err).WithField("path", c.FullPath()).Warn("dependency unavailable")
		c.JSON(http.StatusServiceUnavailable, model.Fail(service.MessageOf(err)))
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("internal error")
		c.JSON(http.StatusInternalServerError, model.Fail(service.MessageOf(err)))
	}
}

// pathID 解析路径上的正整数 id，失败时直接写响应并返回 false。
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusOK, model.Fail("id格式错误"))
		return 0, false
	}
	return id, true
}
