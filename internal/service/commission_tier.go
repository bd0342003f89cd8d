package service

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// 佣金档位阈值（下界包含）
var (
	commissionTierHighThreshold = decimal.NewFromInt(501000)
	commissionTierMidThreshold  = decimal.NewFromInt(201000)
)

const (
	commissionPercentHigh = 15
	commissionPercentMid  = 10
	commissionPercentLow  = 5

	collectionCenterReferralDiscount = 5
)

// referralDiscountBySale 活动折扣档位到邀请折扣的封闭映射
var referralDiscountBySale = map[int64]int{
	20: 2,
	10: 5,
}

// CommissionPercentage 按订单金额返回佣金比例
func CommissionPercentage(amount decimal.Decimal) int {
	switch {
	case amount.GreaterThanOrEqual(commissionTierHighThreshold):
		return commissionPercentHigh
	case amount.GreaterThanOrEqual(commissionTierMidThreshold):
		return commissionPercentMid
	default:
		return commissionPercentLow
	}
}

// CommissionPercentageFromValue 宽松输入版本，无法识别或非有限值按 0 处理
func CommissionPercentageFromValue(value interface{}) int {
	return CommissionPercentage(looseDecimal(value))
}

// CommissionAmount 计算佣金金额：amount * percentage / 100，保留两位
func CommissionAmount(amount decimal.Decimal, percentage int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percentage))).Div(decimal.NewFromInt(100)).Round(2)
}

// ReferralDiscountPercent 邀请折扣比例，集货点固定 5，其余只识别 20 与 10 两档
func ReferralDiscountPercent(saleDiscountPercent interface{}, isCollectionCenter bool) int {
	if isCollectionCenter {
		return collectionCenterReferralDiscount
	}
	sale := looseDecimal(saleDiscountPercent)
	if !sale.IsInteger() {
		return 0
	}
	return referralDiscountBySale[sale.IntPart()]
}

func looseDecimal(value interface{}) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case string:
		value = strings.TrimSpace(v)
	}
	f, err := cast.ToFloat64E(value)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
