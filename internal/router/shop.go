package router

import (
	"net/http"

	"dianping/internal/model"
	"dianping/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func queryShop(shops *service.ShopService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		shop, err := shops.QueryByID(c.Request.Context(), id)
		respond(c, log, shop, err)
	}
}

// updateShop 更新店铺并删除缓存。
func updateShop(shops *service.ShopService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var shop model.Shop
		if err := c.ShouldBindJSON(&shop); err != nil {
			c.JSON(http.StatusOK, model.Fail("请求参数错误"))
			return
		}
		respond(c, log, nil, shops.Update(c.Request.Context(), &shop))
	}
}

// warmShop 预热逻辑过期缓存。
func warmShop(shops *service.ShopService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		respond(c, log, nil, shops.Warm(c.Request.Context(), id))
	}
}
