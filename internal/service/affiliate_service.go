package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/metrics"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const affiliateSlugMaxLength = 64

var (
	affiliateSlugInvalidChars = regexp.MustCompile(`[^a-z0-9-]+`)
	affiliateSlugDashes       = regexp.MustCompile(`-{2,}`)
)

// errCommissionExists 事务内插入命中唯一约束
var errCommissionExists = errors.New("commission already exists")

// AffiliateService 推广归因与佣金生命周期服务
type AffiliateService struct {
	affiliateRepo  repository.AffiliateRepository
	commissionRepo repository.CommissionRepository
	orderRepo      repository.OrderRepository
	userRepo       repository.UserRepository
	codeService    *ReferralCodeService
	cache          *cache.ReferralCache
	notifier       Notifier
	formatter      NotificationFormatter
	metrics        *metrics.AffiliateMetrics
	now            func() time.Time
}

// AffiliateServiceDeps 推广服务依赖
type AffiliateServiceDeps struct {
	AffiliateRepo  repository.AffiliateRepository
	CommissionRepo repository.CommissionRepository
	OrderRepo      repository.OrderRepository
	UserRepo       repository.UserRepository
	CodeService    *ReferralCodeService
	Cache          *cache.ReferralCache
	Notifier       Notifier
	Formatter      NotificationFormatter
	Metrics        *metrics.AffiliateMetrics
}

// NewAffiliateService 创建推广服务
func NewAffiliateService(deps AffiliateServiceDeps) *AffiliateService {
	return &AffiliateService{
		affiliateRepo:  deps.AffiliateRepo,
		commissionRepo: deps.CommissionRepo,
		orderRepo:      deps.OrderRepo,
		userRepo:       deps.UserRepo,
		codeService:    deps.CodeService,
		cache:          deps.Cache,
		notifier:       deps.Notifier,
		formatter:      deps.Formatter,
		metrics:        deps.Metrics,
		now:            time.Now,
	}
}

// Attribution 订单归因结果
type Attribution struct {
	Affiliate *models.Affiliate
	Source    string // link / code
	Reference string // slug 或邀请码
}

// attributionPlan 事务外准备好的归因计划
type attributionPlan struct {
	order       *models.Order
	attribution *Attribution
	percentage  int
	amount      decimal.Decimal
}

// CommissionTransition 佣金状态流转结果（含钱包前后快照）
type CommissionTransition struct {
	Commission   *models.Commission `json:"commission"`
	WalletBefore models.Wallet      `json:"wallet_before"`
	WalletAfter  models.Wallet      `json:"wallet_after"`
}

// LookupBySlug 查询推广链接，不存在返回 nil
func (s *AffiliateService) LookupBySlug(ctx context.Context, slug string) (*models.AffiliateLink, error) {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	if normalized == "" {
		return nil, nil
	}
	if s.cache != nil {
		link, hit, err := s.cache.GetLink(ctx, normalized)
		if err != nil {
			logger.Debugw("affiliate_link_cache_get_failed", "slug", normalized, "error", err)
		} else if hit {
			return link, nil
		}
	}
	link, err := s.affiliateRepo.WithContext(ctx).GetLinkBySlug(normalized)
	if err != nil || link == nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetLink(ctx, link); err != nil {
			logger.Debugw("affiliate_link_cache_set_failed", "slug", normalized, "error", err)
		}
	}
	return link, nil
}

// NormalizeAffiliateSlug 规范化 slug：小写，仅保留 a-z0-9-
func NormalizeAffiliateSlug(raw string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = strings.NewReplacer(" ", "-", "_", "-").Replace(slug)
	slug = affiliateSlugInvalidChars.ReplaceAllString(slug, "")
	slug = affiliateSlugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" || len(slug) > affiliateSlugMaxLength {
		return "", ErrAffiliateLinkInvalid
	}
	return slug, nil
}

// CreateAffiliateLink 为用户创建推广链接，必要时开通推广账户
func (s *AffiliateService) CreateAffiliateLink(ctx context.Context, userID uint, rawSlug string) (*models.AffiliateLink, error) {
	slug, err := NormalizeAffiliateSlug(rawSlug)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.WithContext(ctx).GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	affiliateRepo := s.affiliateRepo.WithContext(ctx)
	affiliate, err := affiliateRepo.GetOrCreateByUserID(user.ID)
	if err != nil {
		return nil, err
	}
	link := &models.AffiliateLink{
		AffiliateID: affiliate.ID,
		Slug:        slug,
		Status:      constants.AffiliateLinkStatusActive,
	}
	if err := affiliateRepo.CreateLink(link); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrAffiliateLinkExists
		}
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.InvalidateLink(ctx, slug)
	}
	link.Affiliate = *affiliate
	return link, nil
}

// GetWallet 查询推广用户钱包
func (s *AffiliateService) GetWallet(ctx context.Context, affiliateID uint) (*models.Wallet, error) {
	affiliate, err := s.affiliateRepo.WithContext(ctx).GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	wallet := affiliate.Wallet()
	return &wallet, nil
}

// ListLinks 查询推广用户的全部链接
func (s *AffiliateService) ListLinks(ctx context.Context, affiliateID uint) ([]models.AffiliateLink, error) {
	repo := s.affiliateRepo.WithContext(ctx)
	affiliate, err := repo.GetByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	return repo.ListLinks(affiliate.ID)
}

// ListCommissions 分页查询佣金
func (s *AffiliateService) ListCommissions(ctx context.Context, filter repository.CommissionListFilter) ([]models.Commission, int64, error) {
	return s.commissionRepo.WithContext(ctx).List(filter)
}

// ResolveAttribution 解析订单归因：推广链接优先，无法解析时回退到邀请码
func (s *AffiliateService) ResolveAttribution(ctx context.Context, buyerID uint, slug, code string) (*Attribution, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	code = strings.ToUpper(strings.TrimSpace(code))
	if slug == "" && code == "" {
		return nil, nil
	}

	if slug != "" {
		attribution, err := s.resolveBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if attribution != nil {
			return s.guardSelfReferral(attribution, buyerID)
		}
	}
	if code != "" {
		attribution, err := s.resolveByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if attribution != nil {
			return s.guardSelfReferral(attribution, buyerID)
		}
	}
	return nil, ErrAttributionUnresolvable
}

func (s *AffiliateService) resolveBySlug(ctx context.Context, slug string) (*Attribution, error) {
	link, err := s.LookupBySlug(ctx, slug)
	if err != nil || link == nil {
		return nil, err
	}
	if link.Status != constants.AffiliateLinkStatusActive {
		return nil, nil
	}
	affiliate, err := s.affiliateRepo.WithContext(ctx).GetByID(link.AffiliateID)
	if err != nil || affiliate == nil {
		return nil, err
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		return nil, nil
	}
	return &Attribution{Affiliate: affiliate, Source: constants.AttributionSourceLink, Reference: link.Slug}, nil
}

func (s *AffiliateService) resolveByCode(ctx context.Context, code string) (*Attribution, error) {
	if s.codeService == nil {
		return nil, nil
	}
	referral, err := s.codeService.LookupByCode(ctx, code)
	if err != nil || referral == nil {
		return nil, err
	}
	affiliate, err := s.affiliateRepo.WithContext(ctx).GetOrCreateByUserID(referral.UserID)
	if err != nil || affiliate == nil {
		return nil, err
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		return nil, nil
	}
	return &Attribution{Affiliate: affiliate, Source: constants.AttributionSourceCode, Reference: referral.Code}, nil
}

// guardSelfReferral 买家不能通过自己的邀请码或链接获得佣金
func (s *AffiliateService) guardSelfReferral(attribution *Attribution, buyerID uint) (*Attribution, error) {
	if buyerID != 0 && attribution.Affiliate.UserID == buyerID {
		return nil, ErrAttributionUnresolvable
	}
	return attribution, nil
}

// AttributeOrder 为已完成订单创建待确认佣金，重复调用返回已有佣金。
// 订单若已签收（异步归因晚于签收），新佣金在同一事务内直接审核通过。
func (s *AffiliateService) AttributeOrder(ctx context.Context, orderID uint) (*models.Commission, error) {
	order, err := s.orderRepo.WithContext(ctx).GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if !attributableOrderStatus(order.Status) {
		return nil, ErrOrderStatusInvalid
	}

	plan, err := s.planAttribution(ctx, order)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return s.commissionRepo.WithContext(ctx).GetByOrder(order.ID)
	}

	now := s.now()
	var commission *models.Commission
	var created bool
	var approval *CommissionTransition
	err = s.affiliateRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orderRepo.WithTx(tx).GetByIDForUpdate(order.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrNotFound
		}
		if !attributableOrderStatus(locked.Status) {
			return ErrOrderStatusInvalid
		}
		plan.order = locked
		if commission, created, err = s.applyAttribution(ctx, tx, plan); err != nil {
			return err
		}
		if !created || locked.Status != constants.OrderStatusDelivered {
			return nil
		}
		if approval, err = s.transitionTx(tx, commission.ID, s.approveChange(now)); err != nil {
			return err
		}
		commission = approval.Commission
		return nil
	})
	if errors.Is(err, errCommissionExists) {
		return s.commissionRepo.WithContext(ctx).GetByOrder(order.ID)
	}
	if err != nil {
		s.metrics.RecordAttribution(plan.attribution.Source, "error")
		return nil, err
	}
	if created {
		s.afterAttribution(ctx, plan, commission)
	}
	if approval != nil {
		logger.Infow("commission_approved_on_late_attribution", "order_id", order.ID, "commission_id", commission.ID)
		s.afterApproval(ctx, approval, now)
	}
	return commission, nil
}

func attributableOrderStatus(status string) bool {
	return status == constants.OrderStatusCompleted || status == constants.OrderStatusDelivered
}

// planAttribution 在事务外完成归因解析与金额计算；无需归因时返回 nil
func (s *AffiliateService) planAttribution(ctx context.Context, order *models.Order) (*attributionPlan, error) {
	if order == nil {
		return nil, nil
	}
	attribution, err := s.ResolveAttribution(ctx, order.UserID, order.AffiliateSlug, order.ReferralCode)
	if errors.Is(err, ErrAttributionUnresolvable) {
		s.metrics.RecordAttribution("", "unresolvable")
		logger.Warnw("referral_attribution_unresolvable",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"buyer_id", order.UserID,
			"affiliate_slug", order.AffiliateSlug,
			"referral_code", order.ReferralCode,
		)
		return nil, nil
	}
	if err != nil || attribution == nil {
		return nil, err
	}

	base := order.Total.Decimal
	percentage := CommissionPercentage(base)
	amount := CommissionAmount(base, percentage)
	if !amount.IsPositive() {
		s.metrics.RecordAttribution(attribution.Source, "zero_amount")
		logger.Warnw("commission_amount_not_positive", "order_id", order.ID, "total", order.Total.String())
		return nil, nil
	}
	return &attributionPlan{
		order:       order,
		attribution: attribution,
		percentage:  percentage,
		amount:      amount,
	}, nil
}

// applyAttribution 在事务内创建佣金并增加待确认余额，二者同时成功或失败
func (s *AffiliateService) applyAttribution(ctx context.Context, tx *gorm.DB, plan *attributionPlan) (*models.Commission, bool, error) {
	commissionRepo := s.commissionRepo.WithTx(tx)
	affiliateID := plan.attribution.Affiliate.ID

	existing, err := commissionRepo.GetByOrder(plan.order.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	row := &models.Commission{
		AffiliateID: affiliateID,
		OrderID:     plan.order.ID,
		BaseAmount:  plan.order.Total,
		Percentage:  plan.percentage,
		Amount:      models.NewMoney(plan.amount),
		Status:      constants.CommissionStatusPending,
		Source:      plan.attribution.Source,
	}
	if err := commissionRepo.Create(row); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, false, errCommissionExists
		}
		return nil, false, err
	}
	if err := s.affiliateRepo.WithTx(tx).CreditPending(affiliateID, plan.amount); err != nil {
		return nil, false, fmt.Errorf("credit pending: %w", err)
	}
	return row, true, nil
}

func (s *AffiliateService) afterAttribution(ctx context.Context, plan *attributionPlan, commission *models.Commission) {
	s.metrics.RecordAttribution(plan.attribution.Source, "attributed")
	s.metrics.RecordTransition(constants.CommissionStatusPending, commission.Percentage, commission.Amount.InexactFloat64())
	logger.Infow("commission_created",
		"commission_id", commission.ID,
		"order_id", plan.order.ID,
		"affiliate_id", commission.AffiliateID,
		"source", plan.attribution.Source,
		"percentage", commission.Percentage,
		"amount", commission.Amount.String(),
	)
	event := ReferralUsedEvent{
		OrderID:         plan.order.ID,
		OrderNo:         plan.order.OrderNo,
		BuyerID:         plan.order.UserID,
		AffiliateID:     commission.AffiliateID,
		AffiliateUserID: plan.attribution.Affiliate.UserID,
		Source:          plan.attribution.Source,
		Reference:       plan.attribution.Reference,
		OrderTotal:      s.formatter.Money(plan.order.Total),
		Commission:      s.formatter.Money(commission.Amount),
		Percentage:      commission.Percentage,
		OccurredAt:      s.formatter.Date(commission.CreatedAt),
	}
	s.notify(constants.NotificationEventReferralUsed, func() error {
		return s.notifier.ReferralUsed(ctx, event)
	})
}

// ApproveCommission 待确认 -> 已通过，待确认余额转入可提现
func (s *AffiliateService) ApproveCommission(ctx context.Context, commissionID uint) (*CommissionTransition, error) {
	now := s.now()
	result, err := s.transition(ctx, commissionID, s.approveChange(now))
	if err != nil {
		return nil, err
	}
	s.afterApproval(ctx, result, now)
	return result, nil
}

// RejectCommission 待确认 -> 已驳回，扣回待确认余额与总额
func (s *AffiliateService) RejectCommission(ctx context.Context, commissionID uint, reason string) (*CommissionTransition, error) {
	reason = normalizeRejectReason(reason)
	result, err := s.transition(ctx, commissionID, s.rejectChange(s.now(), reason))
	if err != nil {
		return nil, err
	}
	s.afterRejection(result, reason)
	return result, nil
}

// commissionChange 在事务内执行钱包变更，返回佣金状态更新字段
type commissionChange func(tx *gorm.DB, row *models.Commission) (map[string]interface{}, error)

func (s *AffiliateService) approveChange(now time.Time) commissionChange {
	return func(tx *gorm.DB, row *models.Commission) (map[string]interface{}, error) {
		if err := s.affiliateRepo.WithTx(tx).MovePendingToAvailable(row.AffiliateID, row.Amount.Decimal); err != nil {
			return nil, err
		}
		row.Status = constants.CommissionStatusApproved
		row.ApprovedAt = &now
		return map[string]interface{}{
			"status":      constants.CommissionStatusApproved,
			"approved_at": now,
			"updated_at":  now,
		}, nil
	}
}

func (s *AffiliateService) rejectChange(now time.Time, reason string) commissionChange {
	return func(tx *gorm.DB, row *models.Commission) (map[string]interface{}, error) {
		if err := s.affiliateRepo.WithTx(tx).ReversePending(row.AffiliateID, row.Amount.Decimal); err != nil {
			return nil, err
		}
		row.Status = constants.CommissionStatusRejected
		row.RejectedAt = &now
		row.RejectReason = reason
		return map[string]interface{}{
			"status":        constants.CommissionStatusRejected,
			"rejected_at":   now,
			"reject_reason": reason,
			"updated_at":    now,
		}, nil
	}
}

func normalizeRejectReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > 255 {
		reason = reason[:255]
	}
	return reason
}

// afterApproval 事务提交后记录指标并发送审核通过通知
func (s *AffiliateService) afterApproval(ctx context.Context, result *CommissionTransition, now time.Time) {
	s.checkWalletBalanced(result)
	commission := result.Commission
	s.metrics.RecordTransition(constants.CommissionStatusApproved, commission.Percentage, commission.Amount.InexactFloat64())
	event := CommissionApprovedEvent{
		CommissionID: commission.ID,
		OrderID:      commission.OrderID,
		AffiliateID:  commission.AffiliateID,
		Amount:       s.formatter.Money(commission.Amount),
		WalletBefore: s.formatter.Wallet(result.WalletBefore),
		WalletAfter:  s.formatter.Wallet(result.WalletAfter),
		ApprovedAt:   s.formatter.Date(now),
	}
	s.notify(constants.NotificationEventCommissionApproved, func() error {
		return s.notifier.CommissionApproved(ctx, event)
	})
}

func (s *AffiliateService) afterRejection(result *CommissionTransition, reason string) {
	s.checkWalletBalanced(result)
	s.metrics.RecordTransition(constants.CommissionStatusRejected, result.Commission.Percentage, result.Commission.Amount.InexactFloat64())
	logger.Infow("commission_rejected",
		"commission_id", result.Commission.ID,
		"affiliate_id", result.Commission.AffiliateID,
		"reason", reason,
	)
}

// transition 在独立事务内执行单条佣金状态变更
func (s *AffiliateService) transition(ctx context.Context, commissionID uint, change commissionChange) (*CommissionTransition, error) {
	var result *CommissionTransition
	err := s.affiliateRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.transitionTx(tx, commissionID, change)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// transitionTx 在调用方事务内锁定佣金与推广用户，执行钱包变更并以状态条件更新佣金
func (s *AffiliateService) transitionTx(tx *gorm.DB, commissionID uint, change commissionChange) (*CommissionTransition, error) {
	commissionRepo := s.commissionRepo.WithTx(tx)
	affiliateRepo := s.affiliateRepo.WithTx(tx)

	row, err := commissionRepo.GetByIDForUpdate(commissionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	if row.Status != constants.CommissionStatusPending {
		return nil, ErrCommissionNotPending
	}
	affiliate, err := affiliateRepo.GetByIDForUpdate(row.AffiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrNotFound
	}
	result := &CommissionTransition{WalletBefore: affiliate.Wallet()}

	updates, err := change(tx, row)
	if errors.Is(err, repository.ErrInsufficientPending) {
		return nil, ErrWalletInsufficientPending
	}
	if err != nil {
		return nil, err
	}
	ok, err := commissionRepo.TransitionStatus(row.ID, constants.CommissionStatusPending, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCommissionNotPending
	}

	after, err := affiliateRepo.GetByID(row.AffiliateID)
	if err != nil {
		return nil, err
	}
	if after == nil {
		return nil, ErrNotFound
	}
	result.WalletAfter = after.Wallet()
	result.Commission = row
	return result, nil
}

func (s *AffiliateService) checkWalletBalanced(result *CommissionTransition) {
	if result == nil || result.WalletAfter.Balanced() {
		return
	}
	logger.Errorw("affiliate_wallet_unbalanced",
		"affiliate_id", result.Commission.AffiliateID,
		"available", result.WalletAfter.Available.String(),
		"pending", result.WalletAfter.Pending.String(),
		"total", result.WalletAfter.Total.String(),
	)
}

// orderCommissionTx 在订单状态变更的同一事务内处理该订单的待确认佣金，无佣金时返回空
func (s *AffiliateService) orderCommissionTx(tx *gorm.DB, orderID uint, change commissionChange) ([]CommissionTransition, error) {
	row, err := s.commissionRepo.WithTx(tx).GetByOrderForUpdate(orderID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.Status != constants.CommissionStatusPending {
		return []CommissionTransition{}, nil
	}
	result, err := s.transitionTx(tx, row.ID, change)
	if err != nil {
		return nil, err
	}
	return []CommissionTransition{*result}, nil
}

// notify 通知失败只记录日志，不影响已提交的状态变更
func (s *AffiliateService) notify(event string, send func() error) {
	if s.notifier == nil {
		return
	}
	err := send()
	s.metrics.RecordNotification(event, err)
	if err != nil {
		logger.Warnw("commission_notify_failed", "event", event, "error", err)
	}
}
