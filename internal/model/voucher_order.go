package model

import "time"

// VoucherOrder 秒杀订单，ID 由 IDWorker 生成。
// (user_id, voucher_id) 唯一，数据库层兜底一人一单。
type VoucherOrder struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	UserID    int64     `gorm:"not null;uniqueIndex:uk_user_voucher,priority:1" json:"userId"`
	VoucherID int64     `gorm:"not null;uniqueIndex:uk_user_voucher,priority:2" json:"voucherId"`
	CreatedAt time.Time `json:"createTime"`
}

func (VoucherOrder) TableName() string { return "tb_voucher_order" }
