package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广用户与钱包数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository
	WithContext(ctx context.Context) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	GetByIDForUpdate(id uint) (*models.Affiliate, error)
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetOrCreateByUserID(userID uint) (*models.Affiliate, error)

	CreditPending(affiliateID uint, amount decimal.Decimal) error
	MovePendingToAvailable(affiliateID uint, amount decimal.Decimal) error
	ReversePending(affiliateID uint, amount decimal.Decimal) error

	GetLinkBySlug(slug string) (*models.AffiliateLink, error)
	CreateLink(link *models.AffiliateLink) error
	ListLinks(affiliateID uint) ([]models.AffiliateLink, error)
}

// GormAffiliateRepository GORM 实现
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广用户仓库
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormAffiliateRepository) WithContext(ctx context.Context) AffiliateRepository {
	if ctx == nil {
		return r
	}
	return &GormAffiliateRepository{db: r.db.WithContext(ctx)}
}

// GetByID 按 ID 获取推广用户
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.Affiliate
	if err := r.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByIDForUpdate 加锁获取推广用户（sqlite 下退化为普通读取）
func (r *GormAffiliateRepository) GetByIDForUpdate(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.Affiliate
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByUserID 按用户 ID 获取推广用户
func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	var row models.Affiliate
	if err := r.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetOrCreateByUserID 获取推广用户，不存在时以空钱包创建
func (r *GormAffiliateRepository) GetOrCreateByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	existing, err := r.GetByUserID(userID)
	if err != nil || existing != nil {
		return existing, err
	}
	row := &models.Affiliate{
		UserID:    userID,
		Status:    constants.AffiliateStatusActive,
		Available: models.ZeroMoney(),
		Pending:   models.ZeroMoney(),
		Total:     models.ZeroMoney(),
	}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	// 并发创建时 DoNothing 不会回填 ID，重新读取
	return r.GetByUserID(userID)
}

// CreditPending 待确认与总额同时增加
func (r *GormAffiliateRepository) CreditPending(affiliateID uint, amount decimal.Decimal) error {
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ?", affiliateID).
		Updates(map[string]interface{}{
			"pending":    gorm.Expr("pending + ?", amount.Round(2)),
			"total":      gorm.Expr("total + ?", amount.Round(2)),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MovePendingToAvailable 待确认转可提现，总额不变
func (r *GormAffiliateRepository) MovePendingToAvailable(affiliateID uint, amount decimal.Decimal) error {
	value := amount.Round(2)
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ? AND pending >= ?", affiliateID, value).
		Updates(map[string]interface{}{
			"pending":    gorm.Expr("pending - ?", value),
			"available":  gorm.Expr("available + ?", value),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientPending
	}
	return nil
}

// ReversePending 扣回待确认金额，总额同步减少
func (r *GormAffiliateRepository) ReversePending(affiliateID uint, amount decimal.Decimal) error {
	value := amount.Round(2)
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ? AND pending >= ?", affiliateID, value).
		Updates(map[string]interface{}{
			"pending":    gorm.Expr("pending - ?", value),
			"total":      gorm.Expr("total - ?", value),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientPending
	}
	return nil
}

// GetLinkBySlug 按 slug 获取推广链接，不存在返回 nil
func (r *GormAffiliateRepository) GetLinkBySlug(slug string) (*models.AffiliateLink, error) {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	if normalized == "" {
		return nil, nil
	}
	var link models.AffiliateLink
	if err := r.db.Preload("Affiliate").Where("slug = ?", normalized).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// CreateLink 创建推广链接
func (r *GormAffiliateRepository) CreateLink(link *models.AffiliateLink) error {
	return r.db.Create(link).Error
}

// ListLinks 查询推广用户的全部链接
func (r *GormAffiliateRepository) ListLinks(affiliateID uint) ([]models.AffiliateLink, error) {
	if affiliateID == 0 {
		return []models.AffiliateLink{}, nil
	}
	var links []models.AffiliateLink
	if err := r.db.Where("affiliate_id = ?", affiliateID).Order("id asc").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}
