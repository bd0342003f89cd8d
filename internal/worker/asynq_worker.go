package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/provider"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/hibiken/asynq"
)

// dispatchFunc 通知投递函数，便于测试替换
type dispatchFunc func(ctx context.Context, payload queue.NotificationDispatchPayload) error

// attributor 订单归因
type attributor interface {
	AttributeOrder(ctx context.Context, orderID uint) (*models.Commission, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
	attributor attributor
	dispatch   dispatchFunc
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	consumer := &Consumer{
		Container: c,
		dispatch:  service.DispatchNotification,
	}
	if c != nil && c.AffiliateService != nil {
		consumer.attributor = c.AffiliateService
	}
	return consumer
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(queue.TaskOrderAttribute, c.handleOrderAttribute)
}

func (c *Consumer) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_notification_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseNotificationDispatchPayload(task)
	if err != nil {
		logger.Warnw("worker_notification_dispatch_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.EventType == "" {
		logger.Debugw("worker_notification_dispatch_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if err := c.dispatch(ctx, payload); err != nil {
		logger.Warnw("worker_notification_dispatch_failed",
			"event", payload.EventType,
			"order_id", payload.OrderID,
			"commission_id", payload.CommissionID,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderAttribute(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_attribute_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseOrderAttributePayload(task)
	if err != nil {
		logger.Warnw("worker_order_attribute_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_attribute_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.attributor == nil {
		logger.Warnw("worker_order_attribute_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	commission, err := c.attributor.AttributeOrder(ctx, payload.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			logger.Debugw("worker_order_attribute_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrOrderStatusInvalid):
			logger.Debugw("worker_order_attribute_skip_invalid_status", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_order_attribute_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	if commission == nil {
		logger.Debugw("worker_order_attribute_no_commission", "order_id", payload.OrderID)
	}
	return nil
}
