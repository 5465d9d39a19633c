package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"dianping/internal/database"
	"dianping/internal/metrics"
	"dianping/internal/model"
	"dianping/internal/queue"
	"dianping/internal/session"
	kv "dianping/pkg/redis"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 落库阶段放弃本条订单的原因，都不需要重试。
var (
	errAlreadyOrdered = errors.New("user already ordered this voucher")
	errSoldOut        = errors.New("voucher sold out in db")
)

// VoucherOrderService 秒杀下单。
// 请求线程只做 Redis 准入和入队，数据库写入由 HandleOrder 在后台串行完成。
type VoucherOrderService struct {
	db       *gorm.DB
	kv       *kv.KV
	ids      *kv.IDWorker
	vouchers *VoucherService
	queue    queue.OrderQueue
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewVoucherOrderService(db *gorm.DB, store *kv.KV, ids *kv.IDWorker, vouchers *VoucherService, q queue.OrderQueue, log logrus.FieldLogger) *VoucherOrderService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VoucherOrderService{
		db:       db,
		kv:       store,
		ids:      ids,
		vouchers: vouchers,
		queue:    q,
		log:      log.WithField("service", "voucher-order"),
		now:      time.Now,
	}
}

// Seckill 抢购一张秒杀券，成功返回订单号。订单此时只是排队中，落库是异步的。
func (s *VoucherOrderService) Seckill(ctx context.Context, voucherID int64) (int64, error) {
	user, ok := session.Current(ctx)
	if !ok {
		return 0, ErrUnauthorized
	}
	// 调用方断开也要把已经扣掉的库存处理完
	ctx = context.WithoutCancel(ctx)

	v, err := s.vouchers.Get(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	if now.Before(v.BeginTime) {
		return 0, ErrNotStarted
	}
	if now.After(v.EndTime) {
		return 0, ErrEnded
	}

	res, err := kv.Admit(ctx, s.kv, voucherID, user.ID)
	if err != nil {
		return 0, transient(err)
	}
	metrics.SeckillAdmissions.WithLabelValues(res.String()).Inc()
	switch res {
	case kv.NoStock:
		return 0, ErrNoStock
	case kv.Duplicate:
		return 0, ErrDuplicateOrder
	}

	orderID, err := s.ids.NextID(ctx, "order")
	if err != nil {
		s.rollback(ctx, voucherID, user.ID)
		return 0, transient(err)
	}
	msg := queue.OrderMessage{
		OrderID:   orderID,
		UserID:    user.ID,
		VoucherID: voucherID,
		CreatedAt: now.UnixMilli(),
	}
	if err := s.queue.Push(ctx, msg); err != nil {
		s.rollback(ctx, voucherID, user.ID)
		return 0, transient(err)
	}
	return orderID, nil
}

// rollback 归还准入脚本扣掉的库存和下单记录，可重复调用。
func (s *VoucherOrderService) rollback(ctx context.Context, voucherID, userID int64) {
	restored, err := kv.Compensate(ctx, s.kv, voucherID, userID)
	entry := s.log.WithFields(logrus.Fields{"voucherId": voucherID, "userId": userID})
	if err != nil {
		entry.WithError(err).Error("compensate stock failed")
		return
	}
	entry.WithField("restored", restored).Warn("seckill admission rolled back")
}

// HandleOrder 是队列 worker 的处理函数：加用户锁后在一个事务里
// 校验一人一单、条件扣减库存、写订单。只有数据库暂时性故障才返回错误。
func (s *VoucherOrderService) HandleOrder(ctx context.Context, msg queue.OrderMessage) error {
	entry := s.log.WithFields(logrus.Fields{
		"orderId":   msg.OrderID,
		"userId":    msg.UserID,
		"voucherId": msg.VoucherID,
	})

	// worker 停止时正在处理的这条消息照常落库并释放锁
	ctx = context.WithoutCancel(ctx)
	lock := kv.NewMutex(s.kv, "order:"+strconv.FormatInt(msg.UserID, 10))
	if !lock.TryLock(ctx, kv.LockTTL) {
		entry.Warn("不允许重复下单")
		metrics.OrdersMaterialized.WithLabelValues("locked").Inc()
		return nil
	}
	defer lock.Unlock(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.VoucherOrder{}).
			Where("user_id = ? AND voucher_id = ?", msg.UserID, msg.VoucherID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errAlreadyOrdered
		}

		res := tx.Model(&model.SeckillVoucher{}).
			Where("voucher_id = ? AND stock > 0", msg.VoucherID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errSoldOut
		}

		order := &model.VoucherOrder{
			ID:        msg.OrderID,
			UserID:    msg.UserID,
			VoucherID: msg.VoucherID,
			CreatedAt: time.UnixMilli(msg.CreatedAt),
		}
		if err := tx.Create(order).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errAlreadyOrdered
			}
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		metrics.OrdersMaterialized.WithLabelValues("created").Inc()
		return nil
	case errors.Is(err, errAlreadyOrdered):
		entry.Warn("用户已经购买过一次")
		metrics.OrdersMaterialized.WithLabelValues("duplicate").Inc()
		return nil
	case errors.Is(err, errSoldOut):
		entry.Warn("库存不足，丢弃订单")
		metrics.OrdersMaterialized.WithLabelValues("sold_out").Inc()
		return nil
	default:
		entry.WithError(err).Error("materialize order failed")
		metrics.OrdersMaterialized.WithLabelValues("error").Inc()
		return err
	}
}

// QueryOrder 查询当前用户已落库的订单。
func (s *VoucherOrderService) QueryOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error) {
	user, ok := session.Current(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	var order model.VoucherOrder
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", orderID, user.ID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderPending
	}
	if err != nil {
		return nil, transient(err)
	}
	return &order, nil
}
