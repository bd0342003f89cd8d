package models

import "time"

// Commission 佣金记录
type Commission struct {
	ID           uint       `gorm:"primarykey" json:"id"`                                       // 主键
	AffiliateID  uint       `gorm:"not null;index" json:"affiliate_id"`                         // 推广用户ID
	OrderID      uint       `gorm:"not null;uniqueIndex" json:"order_id"`                       // 订单ID（每笔订单至多一条佣金）
	BaseAmount   Money      `gorm:"type:decimal(20,2);not null;default:0" json:"base_amount"`   // 佣金基数（订单金额）
	Percentage   int        `gorm:"not null;default:0" json:"percentage"`                       // 佣金比例（档位）
	Amount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`        // 佣金金额
	Status       string     `gorm:"type:varchar(20);not null;index" json:"status"`              // 状态
	Source       string     `gorm:"type:varchar(20);not null;default:''" json:"source"`         // 归因来源 link/code
	RejectReason string     `gorm:"type:varchar(255);not null;default:''" json:"reject_reason"` // 驳回原因
	ApprovedAt   *time.Time `gorm:"index" json:"approved_at,omitempty"`                         // 审核通过时间
	RejectedAt   *time.Time `gorm:"index" json:"rejected_at,omitempty"`                         // 驳回时间
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt    time.Time  `json:"updated_at"`                                                 // 更新时间

	Affiliate Affiliate `gorm:"foreignKey:AffiliateID" json:"-"` // 推广用户
	Order     Order     `gorm:"foreignKey:OrderID" json:"-"`     // 关联订单
}

// TableName 指定表名
func (Commission) TableName() string {
	return "commissions"
}
