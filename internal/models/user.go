package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户表
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                     // 主键
	Email        string         `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`      // 邮箱
	PasswordHash string         `gorm:"type:varchar(255);not null;default:''" json:"-"`           // 密码哈希
	DisplayName  string         `gorm:"type:varchar(100);default:''" json:"display_name"`         // 昵称
	Status       string         `gorm:"type:varchar(20);not null;default:'active'" json:"status"` // 账号状态
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                                  // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                           // 软删除时间

	ReferralCode *ReferralCode `gorm:"foreignKey:UserID" json:"referral_code,omitempty"` // 邀请码
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
