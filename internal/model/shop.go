package model

import "time"

// Shop 店铺。X/Y 为经纬度，AvgPrice 单位为分。
type Shop struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	TypeID    int64     `gorm:"index" json:"typeId"`
	Images    string    `gorm:"size:1024" json:"images"`
	Area      string    `gorm:"size:128" json:"area"`
	Address   string    `gorm:"size:255" json:"address"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	AvgPrice  int64     `json:"avgPrice"`
	Sold      int32     `json:"sold"`
	Comments  int32     `json:"comments"`
	Score     int32     `json:"score"` // 评分 1~5 乘 10
	OpenHours string    `gorm:"size:32" json:"openHours"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

func (Shop) TableName() string { return "tb_shop" }
