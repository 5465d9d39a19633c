package router

import (
	"net/http"
	"strconv"

	"dianping/internal/model"
	"dianping/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// addSeckillVoucher 新增秒杀券，beginTime / endTime 用 RFC3339。
func addSeckillVoucher(vouchers *service.VoucherService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var v model.SeckillVoucher
		if err := c.ShouldBindJSON(&v); err != nil {
			c.JSON(http.StatusOK, model.Fail("请求参数错误"))
			return
		}
		err := vouchers.AddSeckillVoucher(c.Request.Context(), &v)
		respond(c, log, v.VoucherID, err)
	}
}

// preloadStock 将 DB 库存预热到 Redis，供高并发扣减。
func preloadStock(vouchers *service.VoucherService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		stock, err := vouchers.Preload(c.Request.Context(), id)
		respond(c, log, gin.H{"stock": stock}, err)
	}
}

// getStock 查询 Redis 中的实时库存。
func getStock(vouchers *service.VoucherService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		stock, err := vouchers.Stock(c.Request.Context(), id)
		respond(c, log, gin.H{"stock": stock}, err)
	}
}

// seckillVoucher 是秒杀下单入口，返回订单号；订单异步落库。
// 订单号超过 2^53，按字符串返回。
func seckillVoucher(orders *service.VoucherOrderService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		orderID, err := orders.Seckill(c.Request.Context(), id)
		respond(c, log, strconv.FormatInt(orderID, 10), err)
	}
}

// queryOrder 订单还在队列里时返回“处理中”。
func queryOrder(orders *service.VoucherOrderService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		order, err := orders.QueryOrder(c.Request.Context(), id)
		respond(c, log, order, err)
	}
}
