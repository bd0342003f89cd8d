package provider

import (
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/metrics"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client
	Metrics     *metrics.AffiliateMetrics
	Cache       *cache.ReferralCache

	// Repositories
	UserRepo         repository.UserRepository
	ReferralCodeRepo repository.ReferralCodeRepository
	AffiliateRepo    repository.AffiliateRepository
	CommissionRepo   repository.CommissionRepository
	OrderRepo        repository.OrderRepository

	// Services
	ReferralCodeService *service.ReferralCodeService
	AffiliateService    *service.AffiliateService
	OrderService        *service.OrderService
	UserService         *service.UserService
	Notifier            service.Notifier
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端，未启用时为空实现
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		DB:          models.DB,
		QueueClient: queueClient,
		Metrics:     metrics.Affiliate(),
		Cache:       cache.NewReferralCache(time.Duration(cfg.Redis.TTL) * time.Second),
	}

	// 1. 初始化 Repositories
	c.initRepositories(c.DB)

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.UserRepo = repository.NewUserRepository(db)
	c.ReferralCodeRepo = repository.NewReferralCodeRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	c.ReferralCodeService = service.NewReferralCodeService(
		c.ReferralCodeRepo,
		c.UserRepo,
		c.Cache,
		c.Metrics,
		service.NewCryptoRandomSource(),
		service.ReferralCodeOptions{
			BaseURL:     cfg.Referral.BaseURL,
			CodeLength:  cfg.Referral.CodeLength,
			MaxAttempts: cfg.Referral.MaxAttempts,
			BatchSize:   cfg.Referral.BackfillBatchSize,
		},
	)
	c.Notifier = service.NewQueueNotifier(c.QueueClient)
	c.AffiliateService = service.NewAffiliateService(service.AffiliateServiceDeps{
		AffiliateRepo:  c.AffiliateRepo,
		CommissionRepo: c.CommissionRepo,
		OrderRepo:      c.OrderRepo,
		UserRepo:       c.UserRepo,
		CodeService:    c.ReferralCodeService,
		Cache:          c.Cache,
		Notifier:       c.Notifier,
		Formatter: service.NotificationFormatter{
			Currency:   cfg.Commission.Currency,
			DateLayout: cfg.Commission.DateLayout,
		},
		Metrics: c.Metrics,
	})
	c.OrderService = service.NewOrderService(c.OrderRepo, c.AffiliateService, c.QueueClient, service.OrderServiceOptions{
		Currency:         cfg.Commission.Currency,
		AsyncAttribution: cfg.Queue.AsyncAttribution,
	})
	c.UserService = service.NewUserService(c.UserRepo, c.ReferralCodeService)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
