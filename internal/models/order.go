package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表（仅保留归因与佣金相关字段）
type Order struct {
	ID                      uint           `gorm:"primarykey" json:"id"`                                                  // 主键
	OrderNo                 string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`                 // 订单编号
	UserID                  uint           `gorm:"index;not null;default:0" json:"user_id"`                               // 下单用户ID（游客为 0）
	Status                  string         `gorm:"type:varchar(32);index;not null" json:"status"`                         // 订单状态
	Currency                string         `gorm:"type:varchar(10);not null" json:"currency"`                             // 币种
	Subtotal                Money          `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`                 // 商品小计
	Shipping                Money          `gorm:"type:decimal(20,2);not null;default:0" json:"shipping"`                 // 运费
	Total                   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total"`                    // 实付金额
	TotalItems              int            `gorm:"not null;default:0" json:"total_items"`                                 // 商品数量
	ReferralCode            string         `gorm:"type:varchar(16);index" json:"referral_code,omitempty"`                 // 下单使用的邀请码
	AffiliateSlug           string         `gorm:"type:varchar(64);index" json:"affiliate_slug,omitempty"`                // 下单使用的推广链接
	ReferralDiscountPercent int            `gorm:"not null;default:0" json:"referral_discount_percent"`                   // 邀请折扣比例
	ReferralDiscountAmount  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"referral_discount_amount"` // 邀请折扣金额
	PromoDiscountPercent    Money          `gorm:"type:decimal(10,2);not null;default:0" json:"promo_discount_percent"`   // 活动折扣比例
	PromoDiscountAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"promo_discount_amount"`    // 活动折扣金额
	Items                   JSONList       `gorm:"type:json" json:"items"`                                                // 商品快照
	PartialPayment          JSON           `gorm:"type:json" json:"partial_payment,omitempty"`                            // 分期付款信息
	FullPayment             JSON           `gorm:"type:json" json:"full_payment,omitempty"`                               // 全款信息
	ShippingInfo            JSON           `gorm:"type:json" json:"shipping_info,omitempty"`                              // 收货信息
	CompletedAt             *time.Time     `gorm:"index" json:"completed_at,omitempty"`                                   // 支付完成时间
	DeliveredAt             *time.Time     `gorm:"index" json:"delivered_at,omitempty"`                                   // 签收时间
	CanceledAt              *time.Time     `gorm:"index" json:"canceled_at,omitempty"`                                    // 取消时间
	CreatedAt               time.Time      `gorm:"index" json:"created_at"`                                               // 创建时间
	UpdatedAt               time.Time      `gorm:"index" json:"updated_at"`                                               // 更新时间
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"-"`                                                        // 软删除时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
