package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionRepository 佣金数据访问接口
type CommissionRepository interface {
	WithTx(tx *gorm.DB) CommissionRepository
	WithContext(ctx context.Context) CommissionRepository
	Create(row *models.Commission) error
	GetByID(id uint) (*models.Commission, error)
	GetByIDForUpdate(id uint) (*models.Commission, error)
	GetByOrder(orderID uint) (*models.Commission, error)
	GetByOrderForUpdate(orderID uint) (*models.Commission, error)
	TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error)
	List(filter CommissionListFilter) ([]models.Commission, int64, error)
}

// GormCommissionRepository GORM 实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓库
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormCommissionRepository) WithContext(ctx context.Context) CommissionRepository {
	if ctx == nil {
		return r
	}
	return &GormCommissionRepository{db: r.db.WithContext(ctx)}
}

// Create 创建佣金记录
func (r *GormCommissionRepository) Create(row *models.Commission) error {
	return r.db.Create(row).Error
}

// GetByID 获取佣金记录
func (r *GormCommissionRepository) GetByID(id uint) (*models.Commission, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.Commission
	if err := r.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByIDForUpdate 加锁获取佣金记录
func (r *GormCommissionRepository) GetByIDForUpdate(id uint) (*models.Commission, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.Commission
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByOrder 查询订单的佣金，每笔订单至多一条
func (r *GormCommissionRepository) GetByOrder(orderID uint) (*models.Commission, error) {
	return r.firstByOrder(r.db, orderID)
}

// GetByOrderForUpdate 加锁查询订单的佣金
func (r *GormCommissionRepository) GetByOrderForUpdate(orderID uint) (*models.Commission, error) {
	return r.firstByOrder(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *GormCommissionRepository) firstByOrder(db *gorm.DB, orderID uint) (*models.Commission, error) {
	if orderID == 0 {
		return nil, nil
	}
	var row models.Commission
	if err := db.Where("order_id = ?", orderID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// List 分页查询佣金
func (r *GormCommissionRepository) List(filter CommissionListFilter) ([]models.Commission, int64, error) {
	query := r.db.Model(&models.Commission{})
	if filter.AffiliateID > 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.OrderID > 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Commission
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// TransitionStatus 仅当当前状态为 fromStatus 时更新，返回是否命中
func (r *GormCommissionRepository) TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	if id == 0 || len(updates) == 0 {
		return false, nil
	}
	result := r.db.Model(&models.Commission{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
