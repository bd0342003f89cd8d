package router

import (
	"context"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/config"
	adminhandlers "github.com/dujiao-next/affiliate-engine/internal/http/handlers/admin"
	publichandlers "github.com/dujiao-next/affiliate-engine/internal/http/handlers/public"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisClient := cache.Client()
	signupRule := NewRateLimitRule(cache.Prefix(), "signup", cfg.RateLimit.Signup)
	checkoutRule := NewRateLimitRule(cache.Prefix(), "checkout", cfg.RateLimit.Checkout)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware(c.Metrics))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/checkout", RateLimitMiddleware(redisClient, checkoutRule, KeyByIP), publicHandler.Checkout)
		apiV1.GET("/orders/:id", publicHandler.GetOrder)
		apiV1.POST("/users", RateLimitMiddleware(redisClient, signupRule, KeyByIPAndJSONField("email")), publicHandler.CreateUser)
		apiV1.GET("/users/:id", publicHandler.GetUser)
		apiV1.GET("/referral-codes/:code", publicHandler.GetReferralCode)
		apiV1.GET("/affiliate-links/:slug", publicHandler.GetAffiliateLink)
		apiV1.POST("/affiliates/links", publicHandler.CreateAffiliateLink)
		apiV1.GET("/affiliates/:id/wallet", publicHandler.GetWallet)
		apiV1.GET("/affiliates/:id/links", publicHandler.ListAffiliateLinks)

		// 管理端接口（需 JWT）
		admin := apiV1.Group("/admin")
		admin.Use(AdminJWTMiddleware(cfg.JWT.SecretKey))
		{
			admin.POST("/orders/:id/complete", adminHandler.CompleteOrder)
			admin.POST("/orders/:id/deliver", adminHandler.DeliverOrder)
			admin.POST("/orders/:id/cancel", adminHandler.CancelOrder)
			admin.GET("/commissions", adminHandler.ListCommissions)
			admin.POST("/commissions/:id/approve", adminHandler.ApproveCommission)
			admin.POST("/commissions/:id/reject", adminHandler.RejectCommission)
			admin.POST("/referral-codes/backfill", adminHandler.BackfillReferralCodes)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查
	r.GET("/health", func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthCheckTimeout)
		defer cancel()
		status := gin.H{"status": "ok", "database": "ok", "redis": "ok"}
		code := 200
		if err := pingDatabase(checkCtx, c); err != nil {
			status["status"], status["database"] = "degraded", err.Error()
			code = 503
		}
		if err := cache.Ping(checkCtx); err != nil {
			status["status"], status["redis"] = "degraded", err.Error()
		}
		ctx.JSON(code, status)
	})

	return r
}

func pingDatabase(ctx context.Context, c *provider.Container) error {
	if c == nil || c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
