package queue

import (
	"encoding/json"
	"fmt"

	"github.com/dujiao-next/affiliate-engine/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskNotificationDispatch 通知分发任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
	// TaskOrderAttribute 订单佣金归因任务
	TaskOrderAttribute = constants.TaskOrderAttribute
)

// NotificationDispatchPayload 通知分发任务载荷（展示字段已格式化）
type NotificationDispatchPayload struct {
	EventType    string            `json:"event_type"`
	OrderID      uint              `json:"order_id,omitempty"`
	CommissionID uint              `json:"commission_id,omitempty"`
	AffiliateID  uint              `json:"affiliate_id,omitempty"`
	Fields       map[string]string `json:"fields"`
}

// OrderAttributePayload 订单归因任务载荷
type OrderAttributePayload struct {
	OrderID uint `json:"order_id"`
}

// NewNotificationDispatchTask 创建通知分发任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, body), nil
}

// NewOrderAttributeTask 创建订单归因任务
func NewOrderAttributeTask(payload OrderAttributePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderAttribute, body), nil
}

// ParseNotificationDispatchPayload 解析通知分发载荷
func ParseNotificationDispatchPayload(task *asynq.Task) (NotificationDispatchPayload, error) {
	var payload NotificationDispatchPayload
	if task == nil {
		return payload, fmt.Errorf("nil task")
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return payload, nil
}

// ParseOrderAttributePayload 解析订单归因载荷
func ParseOrderAttributePayload(task *asynq.Task) (OrderAttributePayload, error) {
	var payload OrderAttributePayload
	if task == nil {
		return payload, fmt.Errorf("nil task")
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return payload, nil
}
