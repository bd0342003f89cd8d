package models

import (
	"strings"
	"time"
)

// ReferralCode 用户邀请码（每个用户唯一且全局唯一）
type ReferralCode struct {
	ID        uint      `gorm:"primarykey" json:"id"`                              // 主键
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`               // 所属用户
	Code      string    `gorm:"type:varchar(16);not null;uniqueIndex" json:"code"` // 邀请码
	URL       string    `gorm:"type:varchar(512);not null;default:''" json:"url"`  // 邀请链接
	CreatedAt time.Time `gorm:"index" json:"created_at"`                           // 创建时间
}

// TableName 指定表名
func (ReferralCode) TableName() string {
	return "referral_codes"
}

// WithBaseURL 按当前基础地址重新生成邀请链接
func (r ReferralCode) WithBaseURL(baseURL string) ReferralCode {
	r.URL = BuildReferralURL(baseURL, r.Code)
	return r
}

// BuildReferralURL 拼接邀请链接 {base}/{code}
func BuildReferralURL(baseURL, code string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return base + "/" + code
}
