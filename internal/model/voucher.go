package model

import "time"

// SeckillVoucher 秒杀券。Stock 是数据库里的权威库存，
// 实时扣减先走 Redis，落库时再条件更新。
type SeckillVoucher struct {
	VoucherID int64     `gorm:"primaryKey;autoIncrement:false" json:"voucherId"`
	Stock     int32     `gorm:"not null;default:0" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"beginTime"`
	EndTime   time.Time `gorm:"not null" json:"endTime"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

func (SeckillVoucher) TableName() string { return "tb_seckill_voucher" }
