package queue

import (
	"testing"

	"github.com/dujiao-next/affiliate-engine/internal/config"
)

func TestNotificationDispatchTaskRoundTrip(t *testing.T) {
	task, err := NewNotificationDispatchTask(NotificationDispatchPayload{
		EventType:   "commission_approved",
		AffiliateID: 3,
		Fields:      map[string]string{"amount": "90,000.00 COP"},
	})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskNotificationDispatch {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	payload, err := ParseNotificationDispatchPayload(task)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if payload.AffiliateID != 3 || payload.Fields["amount"] != "90,000.00 COP" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := client.EnqueueOrderAttribute(OrderAttributePayload{OrderID: 1}); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(nil)
	if opt.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected addr: %s", opt.Addr)
	}
	if cfg.Concurrency != 10 || cfg.Queues[CriticalQueue] == 0 {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}
