package models

import "time"

// AffiliateLink 推广链接（slug 形式的归因渠道）
type AffiliateLink struct {
	ID          uint      `gorm:"primarykey" json:"id"`                              // 主键
	AffiliateID uint      `gorm:"not null;index" json:"affiliate_id"`                // 推广用户ID
	Slug        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"slug"` // 链接标识
	Status      string    `gorm:"type:varchar(20);not null;index" json:"status"`     // 状态
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt   time.Time `json:"updated_at"`                                        // 更新时间

	Affiliate Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广用户
}

// TableName 指定表名
func (AffiliateLink) TableName() string {
	return "affiliate_links"
}
