package service

import "errors"

var (
	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("not found")
	// ErrCheckoutValidation 结算载荷校验失败
	ErrCheckoutValidation = errors.New("checkout payload invalid")
	// ErrReferralCodeExhausted 邀请码生成次数耗尽
	ErrReferralCodeExhausted = errors.New("referral code generation exhausted")
	// ErrAttributionUnresolvable 邀请码或推广链接无法归因
	ErrAttributionUnresolvable = errors.New("referral attribution unresolvable")
	// ErrCommissionNotPending 佣金已处于终态
	ErrCommissionNotPending = errors.New("commission is not pending")
	// ErrWalletInsufficientPending 待确认余额不足
	ErrWalletInsufficientPending = errors.New("affiliate pending balance insufficient")
	// ErrOrderStatusInvalid 订单状态不允许该操作
	ErrOrderStatusInvalid = errors.New("order status invalid for transition")
	// ErrNotificationDeliveryFailed 通知投递失败
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	// ErrUserInvalid 用户参数不合法
	ErrUserInvalid = errors.New("user input invalid")
	// ErrUserExists 邮箱已注册
	ErrUserExists = errors.New("user already exists")
	// ErrAffiliateLinkInvalid 推广链接 slug 不合法
	ErrAffiliateLinkInvalid = errors.New("affiliate link slug invalid")
	// ErrAffiliateLinkExists 推广链接 slug 已被占用
	ErrAffiliateLinkExists = errors.New("affiliate link slug taken")
)
