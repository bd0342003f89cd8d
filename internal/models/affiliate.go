package models

import (
	"time"

	"gorm.io/gorm"
)

// Affiliate 推广用户及其钱包
type Affiliate struct {
	ID        uint           `gorm:"primarykey" json:"id"`                                   // 主键
	UserID    uint           `gorm:"not null;uniqueIndex" json:"user_id"`                    // 用户ID
	Status    string         `gorm:"type:varchar(20);not null;index" json:"status"`          // 状态
	Available Money          `gorm:"type:decimal(20,2);not null;default:0" json:"available"` // 可提现余额
	Pending   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"pending"`   // 待确认余额
	Total     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total"`     // 总额 = 可提现 + 待确认
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"` // 用户信息
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// Wallet 钱包快照
type Wallet struct {
	Available Money `json:"available"`
	Pending   Money `json:"pending"`
	Total     Money `json:"total"`
}

// Wallet 返回当前钱包快照
func (a Affiliate) Wallet() Wallet {
	return Wallet{
		Available: a.Available,
		Pending:   a.Pending,
		Total:     a.Total,
	}
}

// Balanced 校验 total == available + pending
func (w Wallet) Balanced() bool {
	return w.Total.Decimal.Equal(w.Available.Decimal.Add(w.Pending.Decimal))
}
