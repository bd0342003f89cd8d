package cache

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/models"
)

const defaultReferralTTL = 10 * time.Minute

// ReferralCache 邀请码与推广链接查询缓存
type ReferralCache struct {
	ttl time.Duration
}

// NewReferralCache 创建邀请码缓存，ttl<=0 使用默认值
func NewReferralCache(ttl time.Duration) *ReferralCache {
	if ttl <= 0 {
		ttl = defaultReferralTTL
	}
	return &ReferralCache{ttl: ttl}
}

// GetCode 读取邀请码缓存
func (c *ReferralCache) GetCode(ctx context.Context, code string) (*models.ReferralCode, bool, error) {
	var row models.ReferralCode
	hit, err := GetJSON(ctx, referralCodeKey(code), &row)
	if err != nil || !hit {
		return nil, false, err
	}
	return &row, true, nil
}

// SetCode 写入邀请码缓存（邀请码创建后不可变）
func (c *ReferralCache) SetCode(ctx context.Context, row *models.ReferralCode) error {
	if row == nil {
		return nil
	}
	return SetJSON(ctx, referralCodeKey(row.Code), row, c.ttl)
}

// GetLink 读取推广链接缓存
func (c *ReferralCache) GetLink(ctx context.Context, slug string) (*models.AffiliateLink, bool, error) {
	var link models.AffiliateLink
	hit, err := GetJSON(ctx, affiliateLinkKey(slug), &link)
	if err != nil || !hit {
		return nil, false, err
	}
	return &link, true, nil
}

// SetLink 写入推广链接缓存
func (c *ReferralCache) SetLink(ctx context.Context, link *models.AffiliateLink) error {
	if link == nil {
		return nil
	}
	return SetJSON(ctx, affiliateLinkKey(link.Slug), link, c.ttl)
}

// InvalidateLink 删除推广链接缓存
func (c *ReferralCache) InvalidateLink(ctx context.Context, slug string) error {
	return Del(ctx, affiliateLinkKey(slug))
}

func referralCodeKey(code string) string {
	return "referral:code:" + strings.ToUpper(strings.TrimSpace(code))
}

func affiliateLinkKey(slug string) string {
	return "referral:link:" + strings.ToLower(strings.TrimSpace(slug))
}
