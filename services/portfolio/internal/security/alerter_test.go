package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter := NewAuditAlerter(client, "test:alerts")
	if alerter == nil {
		t.Fatalf("expected alerter")
	}
	return alerter
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newTestAlerter(t)
	ctx := context.Background()
	var last AlertResult
	for i := 0; i < 10; i++ {
		result, err := alerter.Observe(ctx, "portfolio.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if i < 9 && result.Triggered {
			t.Fatalf("triggered early at attempt %d", i+1)
		}
		last = result
	}
	if !last.Triggered || last.Count != 10 || last.Threshold != 10 {
		t.Fatalf("expected alert threshold to trigger, got %+v", last)
	}
}

func TestAuditAlerterCountsPerIP(t *testing.T) {
	alerter := newTestAlerter(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := alerter.Observe(ctx, "portfolio.login", "fail", "10.0.0.1"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	result, err := alerter.Observe(ctx, "portfolio.login", "fail", "10.0.0.2")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected separate counter per ip, got %d", result.Count)
	}
}

func TestAuditAlerterNewWindowResets(t *testing.T) {
	alerter := newTestAlerter(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return now }
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := alerter.Observe(ctx, "portfolio.login", "fail", "1.2.3.4"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	now = now.Add(5 * time.Minute)
	result, err := alerter.Observe(ctx, "portfolio.login", "fail", "1.2.3.4")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected fresh window, got count %d", result.Count)
	}
}

func TestAuditAlerterObserveIgnoresUnknownRule(t *testing.T) {
	alerter := newTestAlerter(t)
	result, err := alerter.Observe(context.Background(), "portfolio.custom", "success", "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered || result.Count != 0 {
		t.Fatalf("unexpected trigger for unknown rule")
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var alerter *AuditAlerter
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without client")
	}
	if _, err := alerter.Observe(context.Background(), "portfolio.login", "fail", "x"); err != nil {
		t.Fatalf("nil alerter observe: %v", err)
	}
}
