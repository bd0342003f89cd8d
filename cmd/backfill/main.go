package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/provider"

	"github.com/caarlos0/env/v11"
)

// overrides 命令行运行时的环境变量覆盖
type overrides struct {
	BaseURL   string `env:"REFERRAL_BASE_URL"`
	BatchSize int    `env:"REFERRAL_BACKFILL_BATCH_SIZE"`
	DSN       string `env:"DATABASE_DSN"`
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()

	var ov overrides
	if err := env.Parse(&ov); err != nil {
		fmt.Fprintf(os.Stderr, "解析环境变量失败: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, ov)

	if err := models.InitDB(models.DBOptions{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Pool: models.DBPoolConfig{
			MaxOpenConns: cfg.Database.Pool.MaxOpenConns,
			MaxIdleConns: cfg.Database.Pool.MaxIdleConns,
		},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "数据库初始化失败: %v\n", err)
		os.Exit(1)
	}
	if err := models.AutoMigrate(nil); err != nil {
		fmt.Fprintf(os.Stderr, "数据库迁移失败: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container := provider.NewContainer(cfg)
	defer container.Close()

	result, err := container.ReferralCodeService.Backfill(ctx)
	fmt.Printf("assigned=%d failed=%d\n", result.Assigned, result.Failed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "补发邀请码失败: %v\n", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config, ov overrides) {
	if ov.BaseURL != "" {
		cfg.Referral.BaseURL = ov.BaseURL
	}
	if ov.BatchSize > 0 {
		cfg.Referral.BackfillBatchSize = ov.BatchSize
	}
	if ov.DSN != "" {
		cfg.Database.DSN = ov.DSN
	}
	cfg.Normalize()
}
