package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AffiliateMetrics 邀请码与佣金生命周期指标
type AffiliateMetrics struct {
	codeAssignments  *prometheus.CounterVec
	codeCollisions   prometheus.Counter
	attributions     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	commissionAmount *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

var (
	affiliateMetricsOnce sync.Once
	affiliateRegistry    *AffiliateMetrics
)

// Affiliate 返回全局指标实例（首次调用时注册）
func Affiliate() *AffiliateMetrics {
	affiliateMetricsOnce.Do(func() {
		affiliateRegistry = &AffiliateMetrics{
			codeAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "referral_code",
				Name:      "assignments_total",
				Help:      "Referral code assignment attempts segmented by outcome.",
			}, []string{"outcome"}),
			codeCollisions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "referral_code",
				Name:      "collisions_total",
				Help:      "Generated referral code candidates that were already taken.",
			}),
			attributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "commission",
				Name:      "attributions_total",
				Help:      "Order attribution results segmented by source and outcome.",
			}, []string{"source", "outcome"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "commission",
				Name:      "transitions_total",
				Help:      "Commission state transitions segmented by target status.",
			}, []string{"status"}),
			commissionAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "commission",
				Name:      "amount_total",
				Help:      "Sum of commission amounts segmented by status and tier percentage.",
			}, []string{"status", "percentage"}),
			notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "notification",
				Name:      "dispatch_total",
				Help:      "Notification dispatch attempts segmented by event and outcome.",
			}, []string{"event", "outcome"}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "affiliate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status.",
			}, []string{"method", "route", "status"}),
			httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "affiliate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
		}
		prometheus.MustRegister(
			affiliateRegistry.codeAssignments,
			affiliateRegistry.codeCollisions,
			affiliateRegistry.attributions,
			affiliateRegistry.transitions,
			affiliateRegistry.commissionAmount,
			affiliateRegistry.notifications,
			affiliateRegistry.httpRequests,
			affiliateRegistry.httpLatency,
		)
	})
	return affiliateRegistry
}

// RecordCodeAssignment 记录邀请码分配结果：assigned/existing/exhausted/error
func (m *AffiliateMetrics) RecordCodeAssignment(outcome string) {
	if m == nil {
		return
	}
	m.codeAssignments.WithLabelValues(outcome).Inc()
}

// RecordCodeCollision 记录候选码冲突
func (m *AffiliateMetrics) RecordCodeCollision() {
	if m == nil {
		return
	}
	m.codeCollisions.Inc()
}

// RecordAttribution 记录归因结果
func (m *AffiliateMetrics) RecordAttribution(source, outcome string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.attributions.WithLabelValues(source, outcome).Inc()
}

// RecordTransition 记录佣金状态流转及金额
func (m *AffiliateMetrics) RecordTransition(status string, percentage int, amount float64) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
	if amount > 0 {
		m.commissionAmount.WithLabelValues(status, strconv.Itoa(percentage)).Add(amount)
	}
}

// RecordNotification 记录通知分发结果
func (m *AffiliateMetrics) RecordNotification(event string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(event, outcome).Inc()
}

// ObserveHTTP 记录 HTTP 请求
func (m *AffiliateMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
