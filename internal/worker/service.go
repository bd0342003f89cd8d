package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name             string
	server           *asynq.Server
	mux              *asynq.ServeMux
	consumer         *Consumer
	backfillInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:             "worker",
		server:           server,
		mux:              mux,
		consumer:         consumer,
		backfillInterval: time.Duration(cfg.Referral.BackfillInterval) * time.Second,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.backfillInterval > 0 && s.consumer != nil && s.consumer.ReferralCodeService != nil {
		go s.runReferralBackfillLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReferralBackfillLoop 定时为创建时未能分配邀请码的用户补发
func (s *Service) runReferralBackfillLoop(ctx context.Context) {
	runOnce := func() {
		result, err := s.consumer.ReferralCodeService.Backfill(ctx)
		if err != nil {
			logger.Warnw("worker_referral_backfill_failed", "error", err)
			return
		}
		if result.Assigned > 0 || result.Failed > 0 {
			logger.Infow("worker_referral_backfill_done", "assigned", result.Assigned, "failed", result.Failed)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.backfillInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
