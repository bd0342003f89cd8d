package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/queue"

	"github.com/hibiken/asynq"
)

// WalletDisplay 钱包展示快照
type WalletDisplay struct {
	Available string `json:"available"`
	Pending   string `json:"pending"`
	Total     string `json:"total"`
}

// ReferralUsedEvent 邀请码/推广链接被使用事件
type ReferralUsedEvent struct {
	OrderID         uint
	OrderNo         string
	BuyerID         uint
	AffiliateID     uint
	AffiliateUserID uint
	Source          string
	Reference       string
	OrderTotal      string
	Commission      string
	Percentage      int
	OccurredAt      string
}

// CommissionApprovedEvent 佣金审核通过事件
type CommissionApprovedEvent struct {
	CommissionID uint
	OrderID      uint
	AffiliateID  uint
	Amount       string
	WalletBefore WalletDisplay
	WalletAfter  WalletDisplay
	ApprovedAt   string
}

// Notifier 通知投递接口，事件字段均已格式化
type Notifier interface {
	ReferralUsed(ctx context.Context, event ReferralUsedEvent) error
	CommissionApproved(ctx context.Context, event CommissionApprovedEvent) error
}

// NotificationFormatter 金额与日期展示格式
type NotificationFormatter struct {
	Currency   string
	DateLayout string
	Location   *time.Location
}

// Money 千分位两位小数并追加币种，例如 90,000.00 COP
func (f NotificationFormatter) Money(m models.Money) string {
	currency := strings.TrimSpace(f.Currency)
	if currency == "" {
		currency = constants.CurrencyDefault
	}
	return m.Display() + " " + currency
}

// Date 按配置格式输出时间
func (f NotificationFormatter) Date(t time.Time) string {
	layout := strings.TrimSpace(f.DateLayout)
	if layout == "" {
		layout = "2006-01-02 15:04"
	}
	if f.Location != nil {
		t = t.In(f.Location)
	}
	return t.Format(layout)
}

// Wallet 格式化钱包快照
func (f NotificationFormatter) Wallet(w models.Wallet) WalletDisplay {
	return WalletDisplay{
		Available: f.Money(w.Available),
		Pending:   f.Money(w.Pending),
		Total:     f.Money(w.Total),
	}
}

// Fields 转换为队列载荷字段
func (e ReferralUsedEvent) Fields() map[string]string {
	return map[string]string{
		"order_no":          e.OrderNo,
		"buyer_id":          strconv.FormatUint(uint64(e.BuyerID), 10),
		"affiliate_user_id": strconv.FormatUint(uint64(e.AffiliateUserID), 10),
		"source":            e.Source,
		"reference":         e.Reference,
		"order_total":       e.OrderTotal,
		"commission":        e.Commission,
		"percentage":        strconv.Itoa(e.Percentage),
		"occurred_at":       e.OccurredAt,
	}
}

// Fields 转换为队列载荷字段
func (e CommissionApprovedEvent) Fields() map[string]string {
	return map[string]string{
		"amount":           e.Amount,
		"before_available": e.WalletBefore.Available,
		"before_pending":   e.WalletBefore.Pending,
		"before_total":     e.WalletBefore.Total,
		"after_available":  e.WalletAfter.Available,
		"after_pending":    e.WalletAfter.Pending,
		"after_total":      e.WalletAfter.Total,
		"approved_at":      e.ApprovedAt,
	}
}

// QueueNotifier 通过 asynq 异步投递通知
type QueueNotifier struct {
	client *queue.Client
}

// NewQueueNotifier 创建队列通知器
func NewQueueNotifier(client *queue.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// ReferralUsed 入队邀请使用通知
func (n *QueueNotifier) ReferralUsed(ctx context.Context, event ReferralUsedEvent) error {
	return n.enqueue(queue.NotificationDispatchPayload{
		EventType:   constants.NotificationEventReferralUsed,
		OrderID:     event.OrderID,
		AffiliateID: event.AffiliateID,
		Fields:      event.Fields(),
	})
}

// CommissionApproved 入队佣金审核通知
func (n *QueueNotifier) CommissionApproved(ctx context.Context, event CommissionApprovedEvent) error {
	return n.enqueue(queue.NotificationDispatchPayload{
		EventType:    constants.NotificationEventCommissionApproved,
		OrderID:      event.OrderID,
		CommissionID: event.CommissionID,
		AffiliateID:  event.AffiliateID,
		Fields:       event.Fields(),
	})
}

func (n *QueueNotifier) enqueue(payload queue.NotificationDispatchPayload) error {
	if n == nil || n.client == nil || !n.client.Enabled() {
		// 队列未启用时直接同步投递
		return DispatchNotification(context.Background(), payload)
	}
	if err := n.client.EnqueueNotificationDispatch(payload, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationDeliveryFailed, err)
	}
	return nil
}

// DispatchNotification 投递通知（渠道实现不在本服务内，此处输出结构化日志）
func DispatchNotification(ctx context.Context, payload queue.NotificationDispatchPayload) error {
	switch payload.EventType {
	case constants.NotificationEventReferralUsed, constants.NotificationEventCommissionApproved:
	default:
		return fmt.Errorf("%w: unsupported event %q", ErrNotificationDeliveryFailed, payload.EventType)
	}
	logger.Infow("notification_dispatched",
		"event", payload.EventType,
		"order_id", payload.OrderID,
		"commission_id", payload.CommissionID,
		"affiliate_id", payload.AffiliateID,
		"message", RenderNotificationMessage(payload),
	)
	return nil
}

// RenderNotificationMessage 生成纯文本通知内容
func RenderNotificationMessage(payload queue.NotificationDispatchPayload) string {
	f := payload.Fields
	switch payload.EventType {
	case constants.NotificationEventReferralUsed:
		return fmt.Sprintf("Order %s (%s) used your referral %s: commission %s at %s%%",
			f["order_no"], f["order_total"], f["reference"], f["commission"], f["percentage"])
	case constants.NotificationEventCommissionApproved:
		return fmt.Sprintf("Commission %s approved at %s. Available %s -> %s, pending %s -> %s, total %s",
			f["amount"], f["approved_at"],
			f["before_available"], f["after_available"],
			f["before_pending"], f["after_pending"],
			f["after_total"])
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, " ")
}
