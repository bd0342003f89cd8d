package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/queue"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/hibiken/asynq"
)

type fakeAttributor struct {
	calls []uint
	err   error
}

func (f *fakeAttributor) AttributeOrder(ctx context.Context, orderID uint) (*models.Commission, error) {
	f.calls = append(f.calls, orderID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Commission{ID: 1, OrderID: orderID}, nil
}

func TestHandleOrderAttribute(t *testing.T) {
	attributor := &fakeAttributor{}
	consumer := &Consumer{attributor: attributor}

	task, err := queue.NewOrderAttributeTask(queue.OrderAttributePayload{OrderID: 42})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handleOrderAttribute(context.Background(), task); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(attributor.calls) != 1 || attributor.calls[0] != 42 {
		t.Fatalf("unexpected calls: %v", attributor.calls)
	}
}

func TestHandleOrderAttributeErrors(t *testing.T) {
	task, _ := queue.NewOrderAttributeTask(queue.OrderAttributePayload{OrderID: 7})

	skip := &Consumer{attributor: &fakeAttributor{err: service.ErrOrderStatusInvalid}}
	if err := skip.handleOrderAttribute(context.Background(), task); err != nil {
		t.Fatalf("invalid status should be skipped, got %v", err)
	}

	boom := errors.New("db down")
	retry := &Consumer{attributor: &fakeAttributor{err: boom}}
	if err := retry.handleOrderAttribute(context.Background(), task); !errors.Is(err, boom) {
		t.Fatalf("transient error should be retried, got %v", err)
	}

	bad := asynq.NewTask(queue.TaskOrderAttribute, []byte("{"))
	if err := retry.handleOrderAttribute(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload should skip retry, got %v", err)
	}

	empty, _ := queue.NewOrderAttributeTask(queue.OrderAttributePayload{})
	attributor := &fakeAttributor{}
	if err := (&Consumer{attributor: attributor}).handleOrderAttribute(context.Background(), empty); err != nil || len(attributor.calls) != 0 {
		t.Fatalf("zero order id should be ignored, err=%v calls=%v", err, attributor.calls)
	}
}

func TestHandleNotificationDispatch(t *testing.T) {
	var got []queue.NotificationDispatchPayload
	consumer := &Consumer{dispatch: func(ctx context.Context, payload queue.NotificationDispatchPayload) error {
		got = append(got, payload)
		return nil
	}}
	task, err := queue.NewNotificationDispatchTask(queue.NotificationDispatchPayload{
		EventType:    constants.NotificationEventCommissionApproved,
		CommissionID: 3,
		Fields:       map[string]string{"amount": "90,000.00 COP"},
	})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handleNotificationDispatch(context.Background(), task); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(got) != 1 || got[0].CommissionID != 3 || got[0].Fields["amount"] != "90,000.00 COP" {
		t.Fatalf("unexpected dispatched payloads: %+v", got)
	}

	failing := &Consumer{dispatch: func(ctx context.Context, payload queue.NotificationDispatchPayload) error {
		return service.ErrNotificationDeliveryFailed
	}}
	if err := failing.handleNotificationDispatch(context.Background(), task); !errors.Is(err, service.ErrNotificationDeliveryFailed) {
		t.Fatalf("expected delivery failure to surface for retry, got %v", err)
	}
}

func TestNewConsumerUsesDefaultDispatcher(t *testing.T) {
	consumer := NewConsumer(nil)
	if consumer.dispatch == nil {
		t.Fatalf("expected default dispatcher")
	}
	if consumer.attributor != nil {
		t.Fatalf("expected no attributor without container")
	}
	task, _ := queue.NewNotificationDispatchTask(queue.NotificationDispatchPayload{
		EventType: constants.NotificationEventReferralUsed,
		Fields:    map[string]string{"order_no": "AF1"},
	})
	if err := consumer.handleNotificationDispatch(context.Background(), task); err != nil {
		t.Fatalf("default dispatch failed: %v", err)
	}
}
