package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var allowedOrderTransitions = map[string]map[string]bool{
	constants.OrderStatusPendingPayment: {
		constants.OrderStatusCompleted: true,
		constants.OrderStatusCanceled:  true,
	},
	constants.OrderStatusCompleted: {
		constants.OrderStatusDelivered: true,
		constants.OrderStatusCanceled:  true,
	},
}

// OrderServiceOptions 订单服务参数
type OrderServiceOptions struct {
	Currency         string
	AsyncAttribution bool
}

// OrderService 结算与订单状态服务
type OrderService struct {
	orderRepo        repository.OrderRepository
	affiliateService *AffiliateService
	queueClient      *queue.Client
	opts             OrderServiceOptions
	now              func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, affiliateService *AffiliateService, queueClient *queue.Client, opts OrderServiceOptions) *OrderService {
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = constants.CurrencyDefault
	}
	return &OrderService{
		orderRepo:        orderRepo,
		affiliateService: affiliateService,
		queueClient:      queueClient,
		opts:             opts,
		now:              time.Now,
	}
}

// CheckoutInput 结算输入
type CheckoutInput struct {
	UserID  uint
	Payload RawCheckoutPayload
}

// OrderCompletion 订单完成结果
type OrderCompletion struct {
	Order      *models.Order      `json:"order"`
	Commission *models.Commission `json:"commission,omitempty"`
	Queued     bool               `json:"queued"`
}

// Checkout 规范化载荷、计算邀请折扣并创建待支付订单
func (s *OrderService) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	payload, err := NormalizeCheckoutPayload(input.Payload)
	if err != nil {
		return nil, err
	}
	if payload.Total == nil || *payload.Total <= 0 {
		return nil, checkoutFieldError(checkoutFieldTotal, "must be greater than zero")
	}
	items, err := validateCheckoutShape(payload)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(payload.String("referralCode"))
	slug := strings.ToLower(payload.String("affiliateSlug"))

	subtotal := optionalDecimal(payload.Subtotal)
	shipping := optionalDecimal(payload.Shipping)
	promoPercent := optionalDecimal(payload.PromoDiscountPercent)
	promoAmount := optionalDecimal(payload.PromoDiscountAmount)
	total := decimal.NewFromFloat(*payload.Total).Round(2)

	referralPercent := 0
	if code != "" || slug != "" {
		referralPercent = s.resolveReferralDiscount(ctx, input.UserID, slug, code, payload)
	}
	discountBase := subtotal
	if payload.Subtotal == nil {
		discountBase = total
	}
	referralAmount := CommissionAmount(discountBase, referralPercent)

	// 有小计时按服务端口径重算应付金额
	if payload.Subtotal != nil {
		serverTotal := subtotal.Add(shipping).Sub(promoAmount).Sub(referralAmount).Round(2)
		if !serverTotal.Equal(total) {
			logger.Warnw("checkout_total_mismatch",
				"user_id", input.UserID,
				"client_total", total.String(),
				"server_total", serverTotal.String(),
			)
		}
		total = serverTotal
		if !total.IsPositive() {
			return nil, checkoutFieldError(checkoutFieldTotal, "must be greater than zero")
		}
	}

	currency := strings.ToUpper(payload.String("currency"))
	if currency == "" {
		currency = s.opts.Currency
	}
	totalItems := 0
	if payload.TotalItems != nil {
		totalItems = int(*payload.TotalItems)
	} else {
		totalItems = sumItemQuantities(items)
	}

	order := &models.Order{
		OrderNo:                 generateOrderNo(s.now()),
		UserID:                  input.UserID,
		Status:                  constants.OrderStatusPendingPayment,
		Currency:                currency,
		Subtotal:                models.NewMoney(subtotal),
		Shipping:                models.NewMoney(shipping),
		Total:                   models.NewMoney(total),
		TotalItems:              totalItems,
		ReferralCode:            code,
		AffiliateSlug:           slug,
		ReferralDiscountPercent: referralPercent,
		ReferralDiscountAmount:  models.NewMoney(referralAmount),
		PromoDiscountPercent:    models.NewMoney(promoPercent),
		PromoDiscountAmount:     models.NewMoney(promoAmount),
		Items:                   models.JSONList(items),
		PartialPayment:          models.JSON(payload.PartialPayment),
		FullPayment:             models.JSON(payload.FullPayment),
		ShippingInfo:            models.JSON(payload.ShippingInfo),
	}
	if err := s.orderRepo.WithContext(ctx).Create(order); err != nil {
		return nil, err
	}
	logger.Infow("checkout_order_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"user_id", order.UserID,
		"total", order.Total.String(),
		"referral_discount_percent", referralPercent,
	)
	return order, nil
}

// resolveReferralDiscount 邀请标识可归因时才给予邀请折扣
func (s *OrderService) resolveReferralDiscount(ctx context.Context, buyerID uint, slug, code string, payload *CheckoutPayload) int {
	if s.affiliateService == nil {
		return 0
	}
	attribution, err := s.affiliateService.ResolveAttribution(ctx, buyerID, slug, code)
	if err != nil {
		if !errors.Is(err, ErrAttributionUnresolvable) {
			logger.Warnw("checkout_referral_resolve_failed", "user_id", buyerID, "error", err)
		}
		return 0
	}
	if attribution == nil {
		return 0
	}
	return ReferralDiscountPercent(payload.Value("saleDiscountPercent"), payload.Bool("isCollectionCenter"))
}

// GetOrder 获取订单
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.WithContext(ctx).GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// Complete 支付确认：订单置为已完成并归因佣金
func (s *OrderService) Complete(ctx context.Context, orderID uint) (*OrderCompletion, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isOrderTransitionAllowed(order.Status, constants.OrderStatusCompleted) {
		return nil, ErrOrderStatusInvalid
	}

	if s.opts.AsyncAttribution && s.queueClient != nil && s.queueClient.Enabled() {
		return s.completeAsync(ctx, order)
	}

	// 归因解析只读，放在事务外；订单状态、佣金与钱包在同一事务内提交
	var plan *attributionPlan
	if s.affiliateService != nil {
		if plan, err = s.affiliateService.planAttribution(ctx, order); err != nil {
			return nil, err
		}
	}

	result := &OrderCompletion{}
	var created bool
	err = s.orderRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.markStatus(tx, order.ID, constants.OrderStatusCompleted)
		if err != nil {
			return err
		}
		result.Order = locked
		if plan == nil {
			return nil
		}
		plan.order = locked
		result.Commission, created, err = s.affiliateService.applyAttribution(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.affiliateService.afterAttribution(ctx, plan, result.Commission)
	}
	return result, nil
}

func (s *OrderService) completeAsync(ctx context.Context, order *models.Order) (*OrderCompletion, error) {
	result := &OrderCompletion{}
	err := s.orderRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.markStatus(tx, order.ID, constants.OrderStatusCompleted)
		result.Order = locked
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := s.queueClient.EnqueueOrderAttribute(queue.OrderAttributePayload{OrderID: order.ID}); err != nil {
		logger.Warnw("order_attribute_enqueue_failed", "order_id", order.ID, "error", err)
		// 入队失败时同步归因，归因本身幂等
		commission, attrErr := s.affiliateService.AttributeOrder(ctx, order.ID)
		if attrErr != nil {
			return nil, attrErr
		}
		result.Commission = commission
		return result, nil
	}
	result.Queued = true
	return result, nil
}

// Deliver 签收确认：订单状态与佣金审核在同一事务内提交，任一失败整体回滚
func (s *OrderService) Deliver(ctx context.Context, orderID uint) (*models.Order, []CommissionTransition, error) {
	now := s.now()
	var order *models.Order
	var transitions []CommissionTransition
	err := s.orderRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if order, err = s.markStatus(tx, orderID, constants.OrderStatusDelivered); err != nil {
			return err
		}
		if s.affiliateService == nil {
			return nil
		}
		transitions, err = s.affiliateService.orderCommissionTx(tx, order.ID, s.affiliateService.approveChange(now))
		if err != nil {
			return fmt.Errorf("approve order commission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for i := range transitions {
		s.affiliateService.afterApproval(ctx, &transitions[i], now)
	}
	return order, transitions, nil
}

// Cancel 取消订单：订单状态与佣金驳回在同一事务内提交
func (s *OrderService) Cancel(ctx context.Context, orderID uint, reason string) (*models.Order, []CommissionTransition, error) {
	reason = normalizeRejectReason(reason)
	if reason == "" {
		reason = "order canceled"
	}
	var order *models.Order
	var transitions []CommissionTransition
	err := s.orderRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if order, err = s.markStatus(tx, orderID, constants.OrderStatusCanceled); err != nil {
			return err
		}
		if s.affiliateService == nil {
			return nil
		}
		change := s.affiliateService.rejectChange(s.now(), reason)
		if transitions, err = s.affiliateService.orderCommissionTx(tx, order.ID, change); err != nil {
			return fmt.Errorf("reject order commission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for i := range transitions {
		s.affiliateService.afterRejection(&transitions[i], reason)
	}
	return order, transitions, nil
}

// markStatus 锁定订单并校验状态流转
func (s *OrderService) markStatus(tx *gorm.DB, orderID uint, target string) (*models.Order, error) {
	repo := s.orderRepo.WithTx(tx)
	order, err := repo.GetByIDForUpdate(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if !isOrderTransitionAllowed(order.Status, target) {
		return nil, ErrOrderStatusInvalid
	}
	now := s.now()
	order.Status = target
	switch target {
	case constants.OrderStatusCompleted:
		order.CompletedAt = &now
	case constants.OrderStatusDelivered:
		order.DeliveredAt = &now
	case constants.OrderStatusCanceled:
		order.CanceledAt = &now
	}
	if err := repo.Update(order); err != nil {
		return nil, err
	}
	return order, nil
}

func isOrderTransitionAllowed(current, target string) bool {
	nexts, ok := allowedOrderTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}

func generateOrderNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("AF%s%s", now.Format("20060102150405"), suffix)
}

func optionalDecimal(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v).Round(2)
}

// validateCheckoutShape 下单要求 items 为非空对象列表，支付与收货信息若提供须为对象
func validateCheckoutShape(payload *CheckoutPayload) ([]map[string]interface{}, error) {
	if len(payload.Items) == 0 {
		return nil, checkoutFieldError(checkoutFieldItems, "must be a non-empty list")
	}
	items, err := payload.ItemObjects()
	if err != nil {
		return nil, err
	}
	for _, field := range []string{checkoutFieldPartialPayment, checkoutFieldFullPayment, checkoutFieldShippingInfo} {
		value, exists := payload.Extra[field]
		if !exists || value == nil {
			continue
		}
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			continue
		}
		return nil, checkoutFieldError(field, "must be an object")
	}
	return items, nil
}

func sumItemQuantities(items []map[string]interface{}) int {
	total := 0
	for _, item := range items {
		if q, ok := item["quantity"].(float64); ok && q > 0 {
			total += int(q)
		}
	}
	return total
}
