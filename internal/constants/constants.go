package constants

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 订单状态常量
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusCompleted      = "completed"
	OrderStatusDelivered      = "delivered"
	OrderStatusCanceled       = "canceled"
)

// 推广用户状态常量
const (
	AffiliateStatusActive   = "active"
	AffiliateStatusDisabled = "disabled"
)

// 推广链接状态常量
const (
	AffiliateLinkStatusActive   = "active"
	AffiliateLinkStatusDisabled = "disabled"
)

// 佣金状态常量
const (
	CommissionStatusPending  = "pending"
	CommissionStatusApproved = "approved"
	CommissionStatusRejected = "rejected"
)

// 佣金归因来源常量
const (
	AttributionSourceLink = "link"
	AttributionSourceCode = "code"
)

// 邀请码常量
const (
	ReferralCodeAlphabet           = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ReferralCodeLengthDefault      = 8
	ReferralCodeMaxAttemptsDefault = 5
)

// 通知事件常量
const (
	NotificationEventReferralUsed       = "referral_used"
	NotificationEventCommissionApproved = "commission_approved"
)

// 队列常量
const (
	QueueDefault             = "default"
	QueueCritical            = "critical"
	TaskNotificationDispatch = "notification:dispatch"
	TaskOrderAttribute       = "order:attribute"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "aff"
)

// 币种常量
const (
	CurrencyDefault = "COP"
)
