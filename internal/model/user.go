package model

import "time"

type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Phone     string    `gorm:"size:11;uniqueIndex;not null" json:"phone"`
	Password  string    `gorm:"size:128" json:"-"`
	NickName  string    `gorm:"size:32" json:"nickName"`
	Icon      string    `gorm:"size:255" json:"icon"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

func (User) TableName() string { return "tb_user" }
