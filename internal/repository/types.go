package repository

// CommissionListFilter 佣金列表过滤条件
type CommissionListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	OrderID     uint
	Status      string
}
