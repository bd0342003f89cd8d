package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/models"

	"gorm.io/gorm"
)

// ReferralCodeRepository 邀请码数据访问接口
type ReferralCodeRepository interface {
	WithContext(ctx context.Context) ReferralCodeRepository
	ExistsByCode(code string) (bool, error)
	GetByCode(code string) (*models.ReferralCode, error)
	GetByUserID(userID uint) (*models.ReferralCode, error)
	Create(code *models.ReferralCode) error
	CountAll() (int64, error)
}

// GormReferralCodeRepository GORM 实现
type GormReferralCodeRepository struct {
	db *gorm.DB
}

// NewReferralCodeRepository 创建邀请码仓库
func NewReferralCodeRepository(db *gorm.DB) *GormReferralCodeRepository {
	return &GormReferralCodeRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormReferralCodeRepository) WithContext(ctx context.Context) ReferralCodeRepository {
	if ctx == nil {
		return r
	}
	return &GormReferralCodeRepository{db: r.db.WithContext(ctx)}
}

// ExistsByCode 判断邀请码是否已被占用
func (r *GormReferralCodeRepository) ExistsByCode(code string) (bool, error) {
	normalized := normalizeCode(code)
	if normalized == "" {
		return false, nil
	}
	var total int64
	if err := r.db.Model(&models.ReferralCode{}).Where("code = ?", normalized).Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// GetByCode 按邀请码查询，不存在返回 nil
func (r *GormReferralCodeRepository) GetByCode(code string) (*models.ReferralCode, error) {
	normalized := normalizeCode(code)
	if normalized == "" {
		return nil, nil
	}
	var row models.ReferralCode
	if err := r.db.Where("code = ?", normalized).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByUserID 按用户查询邀请码
func (r *GormReferralCodeRepository) GetByUserID(userID uint) (*models.ReferralCode, error) {
	if userID == 0 {
		return nil, nil
	}
	var row models.ReferralCode
	if err := r.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Create 写入邀请码，唯一约束冲突原样返回
func (r *GormReferralCodeRepository) Create(code *models.ReferralCode) error {
	return r.db.Create(code).Error
}

// CountAll 统计已分配邀请码数量
func (r *GormReferralCodeRepository) CountAll() (int64, error) {
	var total int64
	if err := r.db.Model(&models.ReferralCode{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
