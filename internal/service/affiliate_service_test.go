package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu       sync.Mutex
	used     []ReferralUsedEvent
	approved []CommissionApprovedEvent
	fail     bool
}

func (n *recordingNotifier) ReferralUsed(ctx context.Context, event ReferralUsedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return ErrNotificationDeliveryFailed
	}
	n.used = append(n.used, event)
	return nil
}

func (n *recordingNotifier) CommissionApproved(ctx context.Context, event CommissionApprovedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return ErrNotificationDeliveryFailed
	}
	n.approved = append(n.approved, event)
	return nil
}

type affiliateTestEnv struct {
	db        *gorm.DB
	codes     *ReferralCodeService
	affiliate *AffiliateService
	orders    *OrderService
	notifier  *recordingNotifier
}

func setupAffiliateServiceTest(t *testing.T) *affiliateTestEnv {
	t.Helper()
	db := setupServiceTestDB(t)
	userRepo := repository.NewUserRepository(db)
	codes := NewReferralCodeService(
		repository.NewReferralCodeRepository(db),
		userRepo,
		nil,
		nil,
		rand.New(rand.NewSource(11)),
		ReferralCodeOptions{BaseURL: "https://shop.example.com/r"},
	)
	notifier := &recordingNotifier{}
	affiliate := NewAffiliateService(AffiliateServiceDeps{
		AffiliateRepo:  repository.NewAffiliateRepository(db),
		CommissionRepo: repository.NewCommissionRepository(db),
		OrderRepo:      repository.NewOrderRepository(db),
		UserRepo:       userRepo,
		CodeService:    codes,
		Notifier:       notifier,
		Formatter:      NotificationFormatter{Currency: "COP", DateLayout: "2006-01-02", Location: time.UTC},
	})
	orders := NewOrderService(repository.NewOrderRepository(db), affiliate, nil, OrderServiceOptions{})
	return &affiliateTestEnv{db: db, codes: codes, affiliate: affiliate, orders: orders, notifier: notifier}
}

// createReferrer 创建带邀请码的推广用户
func (e *affiliateTestEnv) createReferrer(t *testing.T, email string) (*models.User, *models.ReferralCode) {
	t.Helper()
	user := createServiceTestUser(t, e.db, email)
	code, err := e.codes.AssignCode(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("assign code failed: %v", err)
	}
	return user, code
}

// createCompletedOrder 直接写入已完成订单
func (e *affiliateTestEnv) createCompletedOrder(t *testing.T, buyerID uint, total string, code, slug string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNo:       fmt.Sprintf("T%d", time.Now().UnixNano()),
		UserID:        buyerID,
		Status:        constants.OrderStatusCompleted,
		Currency:      "COP",
		Total:         models.NewMoney(decimal.RequireFromString(total)),
		ReferralCode:  code,
		AffiliateSlug: slug,
	}
	if err := e.db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func (e *affiliateTestEnv) wallet(t *testing.T, affiliateID uint) models.Wallet {
	t.Helper()
	wallet, err := e.affiliate.GetWallet(context.Background(), affiliateID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if !wallet.Balanced() {
		t.Fatalf("wallet invariant violated: %+v", wallet)
	}
	return *wallet
}

func TestAttributeOrderCreatesPendingCommission(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	referrer, code := env.createReferrer(t, "ref@example.com")
	buyer := createServiceTestUser(t, env.db, "buyer@example.com")
	order := env.createCompletedOrder(t, buyer.ID, "600000", code.Code, "")

	commission, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("attribute failed: %v", err)
	}
	if commission == nil {
		t.Fatalf("expected commission")
	}
	if commission.Status != constants.CommissionStatusPending || commission.Percentage != 15 {
		t.Fatalf("unexpected commission: %+v", commission)
	}
	if commission.Amount.String() != "90000.00" || commission.Source != constants.AttributionSourceCode {
		t.Fatalf("unexpected commission amount/source: %s %s", commission.Amount.String(), commission.Source)
	}

	wallet := env.wallet(t, commission.AffiliateID)
	if wallet.Pending.String() != "90000.00" || wallet.Total.String() != "90000.00" || !wallet.Available.IsZero() {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}

	if len(env.notifier.used) != 1 {
		t.Fatalf("expected one referral used notification, got %d", len(env.notifier.used))
	}
	event := env.notifier.used[0]
	if event.Commission != "90,000.00 COP" || event.OrderTotal != "600,000.00 COP" || event.AffiliateUserID != referrer.ID {
		t.Fatalf("unexpected notification: %+v", event)
	}

	again, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || again == nil || again.ID != commission.ID {
		t.Fatalf("expected idempotent attribution, got %+v err=%v", again, err)
	}
	wallet = env.wallet(t, commission.AffiliateID)
	if wallet.Pending.String() != "90000.00" {
		t.Fatalf("second attribution must not credit again: %+v", wallet)
	}
}

func TestApproveCommissionMovesPendingToAvailable(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	_, code := env.createReferrer(t, "ref@example.com")
	buyer := createServiceTestUser(t, env.db, "buyer@example.com")
	order := env.createCompletedOrder(t, buyer.ID, "600000", code.Code, "")
	commission, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || commission == nil {
		t.Fatalf("attribute failed: %v", err)
	}

	result, err := env.affiliate.ApproveCommission(context.Background(), commission.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if result.Commission.Status != constants.CommissionStatusApproved || result.Commission.ApprovedAt == nil {
		t.Fatalf("unexpected commission: %+v", result.Commission)
	}
	if result.WalletBefore.Pending.String() != "90000.00" || result.WalletAfter.Available.String() != "90000.00" {
		t.Fatalf("unexpected snapshots: before=%+v after=%+v", result.WalletBefore, result.WalletAfter)
	}
	if !result.WalletBefore.Total.Equal(result.WalletAfter.Total.Decimal) {
		t.Fatalf("approval must not change total")
	}
	wallet := env.wallet(t, commission.AffiliateID)
	if !wallet.Pending.IsZero() || wallet.Available.String() != "90000.00" || wallet.Total.String() != "90000.00" {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}

	if len(env.notifier.approved) != 1 {
		t.Fatalf("expected approval notification")
	}
	event := env.notifier.approved[0]
	if event.WalletBefore.Pending != "90,000.00 COP" || event.WalletAfter.Available != "90,000.00 COP" || event.WalletAfter.Pending != "0.00 COP" {
		t.Fatalf("unexpected approval event: %+v", event)
	}

	if _, err := env.affiliate.ApproveCommission(context.Background(), commission.ID); !errors.Is(err, ErrCommissionNotPending) {
		t.Fatalf("approved commission is terminal, got %v", err)
	}
	if _, err := env.affiliate.RejectCommission(context.Background(), commission.ID, "late"); !errors.Is(err, ErrCommissionNotPending) {
		t.Fatalf("approved commission cannot be rejected, got %v", err)
	}
}

func TestRejectCommissionReversesPending(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	_, code := env.createReferrer(t, "ref@example.com")
	buyer := createServiceTestUser(t, env.db, "buyer@example.com")
	first := env.createCompletedOrder(t, buyer.ID, "300000", code.Code, "")
	second := env.createCompletedOrder(t, buyer.ID, "100000", code.Code, "")

	c1, err := env.affiliate.AttributeOrder(context.Background(), first.ID)
	if err != nil || c1 == nil {
		t.Fatalf("attribute first failed: %v", err)
	}
	c2, err := env.affiliate.AttributeOrder(context.Background(), second.ID)
	if err != nil || c2 == nil {
		t.Fatalf("attribute second failed: %v", err)
	}
	if c1.Amount.String() != "30000.00" || c2.Amount.String() != "5000.00" {
		t.Fatalf("unexpected amounts: %s %s", c1.Amount.String(), c2.Amount.String())
	}

	result, err := env.affiliate.RejectCommission(context.Background(), c1.ID, "fraud")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if result.Commission.Status != constants.CommissionStatusRejected || result.Commission.RejectReason != "fraud" {
		t.Fatalf("unexpected rejected commission: %+v", result.Commission)
	}
	wallet := env.wallet(t, c1.AffiliateID)
	if wallet.Pending.String() != "5000.00" || wallet.Total.String() != "5000.00" || !wallet.Available.IsZero() {
		t.Fatalf("unexpected wallet after reject: %+v", wallet)
	}

	if _, err := env.affiliate.ApproveCommission(context.Background(), c2.ID); err != nil {
		t.Fatalf("approve second failed: %v", err)
	}
	wallet = env.wallet(t, c1.AffiliateID)
	if wallet.Available.String() != "5000.00" || !wallet.Pending.IsZero() || wallet.Total.String() != "5000.00" {
		t.Fatalf("unexpected final wallet: %+v", wallet)
	}
}

func TestAttributionPrefersAffiliateLink(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	linkOwner, _ := env.createReferrer(t, "link@example.com")
	_, code := env.createReferrer(t, "code@example.com")
	buyer := createServiceTestUser(t, env.db, "buyer@example.com")

	link, err := env.affiliate.CreateAffiliateLink(context.Background(), linkOwner.ID, "Black Friday_2024!")
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	if link.Slug != "black-friday-2024" {
		t.Fatalf("unexpected slug: %s", link.Slug)
	}

	order := env.createCompletedOrder(t, buyer.ID, "250000", code.Code, link.Slug)
	commission, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || commission == nil {
		t.Fatalf("attribute failed: %v", err)
	}
	if commission.AffiliateID != link.AffiliateID || commission.Source != constants.AttributionSourceLink {
		t.Fatalf("expected link attribution, got %+v", commission)
	}
	if commission.Percentage != 10 || commission.Amount.String() != "25000.00" {
		t.Fatalf("unexpected commission: %+v", commission)
	}

	// 链接无法解析时回退到邀请码
	fallback := env.createCompletedOrder(t, buyer.ID, "1000", code.Code, "missing-link")
	commission, err = env.affiliate.AttributeOrder(context.Background(), fallback.ID)
	if err != nil || commission == nil {
		t.Fatalf("fallback attribute failed: %v", err)
	}
	if commission.Source != constants.AttributionSourceCode || commission.Amount.String() != "50.00" {
		t.Fatalf("expected code attribution, got %+v", commission)
	}
}

func TestAttributionIgnoresSelfReferralAndUnknownCode(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	referrer, code := env.createReferrer(t, "self@example.com")

	self := env.createCompletedOrder(t, referrer.ID, "600000", code.Code, "")
	commission, err := env.affiliate.AttributeOrder(context.Background(), self.ID)
	if err != nil || commission != nil {
		t.Fatalf("self referral must not be attributed, got %+v err=%v", commission, err)
	}

	unknown := env.createCompletedOrder(t, 0, "600000", "NOPE1234", "")
	commission, err = env.affiliate.AttributeOrder(context.Background(), unknown.ID)
	if err != nil || commission != nil {
		t.Fatalf("unknown code must not be attributed, got %+v err=%v", commission, err)
	}

	var total int64
	env.db.Model(&models.Commission{}).Count(&total)
	if total != 0 {
		t.Fatalf("expected no commissions, got %d", total)
	}
}

func TestAttributionSkipsDisabledLink(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	owner, _ := env.createReferrer(t, "owner@example.com")
	link, err := env.affiliate.CreateAffiliateLink(context.Background(), owner.ID, "spring")
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	if err := env.db.Model(&models.AffiliateLink{}).Where("id = ?", link.ID).Update("status", constants.AffiliateLinkStatusDisabled).Error; err != nil {
		t.Fatalf("disable link failed: %v", err)
	}
	order := env.createCompletedOrder(t, 0, "1000", "", "spring")
	commission, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || commission != nil {
		t.Fatalf("disabled link must not attribute, got %+v err=%v", commission, err)
	}

	if _, err := env.affiliate.CreateAffiliateLink(context.Background(), owner.ID, "SPRING"); !errors.Is(err, ErrAffiliateLinkExists) {
		t.Fatalf("expected slug taken, got %v", err)
	}
	if _, err := env.affiliate.CreateAffiliateLink(context.Background(), owner.ID, "!!!"); !errors.Is(err, ErrAffiliateLinkInvalid) {
		t.Fatalf("expected invalid slug, got %v", err)
	}
}

func TestNotificationFailureKeepsCommission(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	env.notifier.fail = true
	_, code := env.createReferrer(t, "ref@example.com")
	order := env.createCompletedOrder(t, 0, "600000", code.Code, "")

	commission, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || commission == nil {
		t.Fatalf("notification failure must not fail attribution: %v", err)
	}
	if _, err := env.affiliate.ApproveCommission(context.Background(), commission.ID); err != nil {
		t.Fatalf("notification failure must not fail approval: %v", err)
	}
	var stored models.Commission
	if err := env.db.First(&stored, commission.ID).Error; err != nil {
		t.Fatalf("load commission failed: %v", err)
	}
	if stored.Status != constants.CommissionStatusApproved {
		t.Fatalf("expected approved commission, got %s", stored.Status)
	}
}

func TestConcurrentTransitionsKeepWalletBalanced(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	_, code := env.createReferrer(t, "ref@example.com")

	const orders = 12
	ids := make([]uint, 0, orders)
	for i := 0; i < orders; i++ {
		order := env.createCompletedOrder(t, 0, "100000", code.Code, "")
		ids = append(ids, order.ID)
	}

	var wg sync.WaitGroup
	commissions := make(chan *models.Commission, orders)
	for _, id := range ids {
		wg.Add(1)
		go func(orderID uint) {
			defer wg.Done()
			commission, err := env.affiliate.AttributeOrder(context.Background(), orderID)
			if err != nil {
				t.Errorf("attribute %d failed: %v", orderID, err)
				return
			}
			commissions <- commission
		}(id)
	}
	wg.Wait()
	close(commissions)

	var affiliateID uint
	var approveIDs, rejectIDs []uint
	i := 0
	for commission := range commissions {
		affiliateID = commission.AffiliateID
		if i%3 == 0 {
			rejectIDs = append(rejectIDs, commission.ID)
		} else {
			approveIDs = append(approveIDs, commission.ID)
		}
		i++
	}
	if i != orders {
		t.Fatalf("expected %d commissions, got %d", orders, i)
	}

	for _, id := range append(approveIDs, approveIDs...) {
		wg.Add(1)
		go func(commissionID uint) {
			defer wg.Done()
			_, _ = env.affiliate.ApproveCommission(context.Background(), commissionID)
		}(id)
	}
	for _, id := range rejectIDs {
		wg.Add(1)
		go func(commissionID uint) {
			defer wg.Done()
			_, _ = env.affiliate.RejectCommission(context.Background(), commissionID, "bulk")
		}(id)
	}
	wg.Wait()

	wallet := env.wallet(t, affiliateID)
	expectedAvailable := decimal.NewFromInt(5000).Mul(decimal.NewFromInt(int64(len(approveIDs))))
	if !wallet.Available.Equal(expectedAvailable) || !wallet.Pending.IsZero() || !wallet.Total.Equal(expectedAvailable) {
		t.Fatalf("unexpected wallet: %+v expected available %s", wallet, expectedAvailable.String())
	}
}

func TestAttributeAfterDeliverApprovesCommission(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	_, code := env.createReferrer(t, "ref@example.com")
	buyer := createServiceTestUser(t, env.db, "buyer@example.com")
	order := env.createCompletedOrder(t, buyer.ID, "600000", code.Code, "")

	// 异步归因尚未执行时订单已签收
	delivered, transitions, err := env.orders.Deliver(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if delivered.Status != constants.OrderStatusDelivered || len(transitions) != 0 {
		t.Fatalf("unexpected deliver result: %+v %d", delivered, len(transitions))
	}

	commission, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || commission == nil {
		t.Fatalf("attribute failed: %v", err)
	}
	if commission.Status != constants.CommissionStatusApproved || commission.ApprovedAt == nil {
		t.Fatalf("late attribution must be approved, got %+v", commission)
	}
	if commission.Amount.String() != "90000.00" {
		t.Fatalf("unexpected amount: %s", commission.Amount.String())
	}
	wallet := env.wallet(t, commission.AffiliateID)
	if wallet.Available.String() != "90000.00" || !wallet.Pending.IsZero() {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}
	if len(env.notifier.used) != 1 || len(env.notifier.approved) != 1 {
		t.Fatalf("unexpected notifications: used=%d approved=%d", len(env.notifier.used), len(env.notifier.approved))
	}

	again, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || again == nil || again.ID != commission.ID || again.Status != constants.CommissionStatusApproved {
		t.Fatalf("repeat attribution must return the same commission, got %+v err=%v", again, err)
	}
	if env.wallet(t, commission.AffiliateID).Available.String() != "90000.00" || len(env.notifier.approved) != 1 {
		t.Fatalf("repeat attribution must not credit twice")
	}
}

func TestAttributeCanceledOrderRejected(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	_, code := env.createReferrer(t, "ref@example.com")
	order := env.createCompletedOrder(t, 0, "600000", code.Code, "")
	if _, _, err := env.orders.Cancel(context.Background(), order.ID, ""); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := env.affiliate.AttributeOrder(context.Background(), order.ID); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("canceled order must not be attributed, got %v", err)
	}
	var total int64
	env.db.Model(&models.Commission{}).Count(&total)
	if total != 0 {
		t.Fatalf("expected no commissions, got %d", total)
	}
}

func TestAttributeOrderKeepsSingleCommission(t *testing.T) {
	env := setupAffiliateServiceTest(t)
	linkOwner, _ := env.createReferrer(t, "link@example.com")
	codeOwner, code := env.createReferrer(t, "code@example.com")
	link, err := env.affiliate.CreateAffiliateLink(context.Background(), linkOwner.ID, "autumn")
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	order := env.createCompletedOrder(t, 0, "100000", code.Code, link.Slug)
	first, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || first == nil || first.AffiliateID != link.AffiliateID {
		t.Fatalf("attribute failed: %+v err=%v", first, err)
	}

	// 链接停用后重新归因会解析到邀请码，但订单已有佣金
	if err := env.db.Model(&models.AffiliateLink{}).Where("id = ?", link.ID).Update("status", constants.AffiliateLinkStatusDisabled).Error; err != nil {
		t.Fatalf("disable link failed: %v", err)
	}
	second, err := env.affiliate.AttributeOrder(context.Background(), order.ID)
	if err != nil || second == nil || second.ID != first.ID {
		t.Fatalf("expected existing commission, got %+v err=%v", second, err)
	}
	var total int64
	env.db.Model(&models.Commission{}).Where("order_id = ?", order.ID).Count(&total)
	if total != 1 {
		t.Fatalf("expected one commission per order, got %d", total)
	}
	codeAffiliate, err := repository.NewAffiliateRepository(env.db).GetByUserID(codeOwner.ID)
	if err != nil {
		t.Fatalf("get affiliate failed: %v", err)
	}
	if codeAffiliate != nil && !env.wallet(t, codeAffiliate.ID).Total.IsZero() {
		t.Fatalf("code owner must not be credited")
	}
}
