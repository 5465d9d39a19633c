package model

import "time"

type Blog struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ShopID    int64     `gorm:"index" json:"shopId"`
	UserID    int64     `gorm:"index;not null" json:"userId"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Images    string    `gorm:"size:2048" json:"images"`
	Content   string    `gorm:"type:text" json:"content"`
	Liked     int32     `gorm:"not null;default:0" json:"liked"`
	Comments  int32     `gorm:"not null;default:0" json:"comments"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`

	// 以下字段不落库，查询时填充
	Name   string `gorm:"-" json:"name"`
	Icon   string `gorm:"-" json:"icon"`
	IsLike bool   `gorm:"-" json:"isLike"`
}

func (Blog) TableName() string { return "tb_blog" }
