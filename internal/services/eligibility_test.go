package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/benefits-backend/internal/clients/notification"
	"github.com/yungbote/benefits-backend/internal/clients/validation"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
	"github.com/yungbote/benefits-backend/internal/platform/resilience"
)

type fakeValidation struct {
	calls  atomic.Int32
	result validation.EligibilityResult
	err    error
}

func (f *fakeValidation) CheckEligibility(context.Context, validation.EligibilityRequest) (validation.EligibilityResult, error) {
	f.calls.Add(1)
	return f.result, f.err
}

func testInvoker() *resilience.Invoker {
	return resilience.NewInvoker(resilience.NewRegistry(logger.Nop(), nil, resilience.Policy{
		Timeout:          50 * time.Millisecond,
		MaxAttempts:      1,
		Backoff:          resilience.BackoffFixed,
		InitialInterval:  time.Millisecond,
		FailureThreshold: 2,
		Window:           time.Minute,
		CoolDown:         time.Minute,
	}, nil))
}

func TestEligibilityCheckerPassesAnswerThrough(t *testing.T) {
	client := &fakeValidation{result: validation.EligibilityResult{Valid: true, Status: "EMPLOYED", Message: "ok"}}
	c := NewEligibilityChecker(logger.Nop(), client, testInvoker())
	got := c.Check(context.Background(), "S1", "HEALTH")
	if got.Degraded || !got.Eligible || got.Status != "EMPLOYED" {
		t.Fatalf("Check: got=%+v", got)
	}
}

func TestEligibilityCheckerDegradesWhenOpen(t *testing.T) {
	client := &fakeValidation{err: errors.New("connection refused")}
	c := NewEligibilityChecker(logger.Nop(), client, testInvoker())
	for i := 0; i < 2; i++ {
		if got := c.Check(context.Background(), "S1", "HEALTH"); !got.Degraded || got.Eligible {
			t.Fatalf("failing call %d: want degraded not eligible got=%+v", i, got)
		}
	}
	got := c.Check(context.Background(), "S1", "HEALTH")
	if got.Reason != resilience.ReasonCircuitOpen {
		t.Fatalf("reason: want=%s got=%s", resilience.ReasonCircuitOpen, got.Reason)
	}
	if n := client.calls.Load(); n != 2 {
		t.Fatalf("calls: want=2 got=%d", n)
	}
}

func TestEligibilityCheckerDegradesOnInvokerError(t *testing.T) {
	client := &fakeValidation{err: errors.New("connection refused")}
	c := NewEligibilityChecker(logger.Nop(), client, testInvoker())
	c.(*eligibilityChecker).fallback = nil

	got := c.Check(context.Background(), "S1", "HEALTH")
	if !got.Degraded || got.Eligible || got.Reason == "" {
		t.Fatalf("no fallback: want degraded with reason got=%+v", got)
	}
}

func TestEligibilityCheckerWithoutClient(t *testing.T) {
	c := NewEligibilityChecker(logger.Nop(), nil, testInvoker())
	if got := c.Check(context.Background(), "S1", "HEALTH"); !got.Degraded {
		t.Fatalf("no client: want degraded got=%+v", got)
	}
}

type fakeNotificationClient struct {
	sent chan notification.Notice
	err  error
}

func (f *fakeNotificationClient) Send(_ context.Context, n notification.Notice) (notification.Receipt, error) {
	f.sent <- n
	return notification.Receipt{ID: "n-1", Status: "SENT"}, f.err
}

func TestNotifierDeliversOffThePath(t *testing.T) {
	client := &fakeNotificationClient{sent: make(chan notification.Notice, 4)}
	n := NewNotifier(logger.Nop(), client, testInvoker(), nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	n.Notify(notification.Notice{SubjectID: "S1", BenefitID: "b-1", EventType: "BenefitAssigned"})
	select {
	case got := <-client.sent:
		if got.BenefitID != "b-1" {
			t.Fatalf("notice: got=%+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notice not delivered")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNotifierDropsWhenQueueFull(t *testing.T) {
	client := &fakeNotificationClient{sent: make(chan notification.Notice, 4)}
	n := NewNotifier(logger.Nop(), client, testInvoker(), nil, 1)
	// Run is not started, so the second notice finds the queue full.
	n.Notify(notification.Notice{BenefitID: "b-1"})
	n.Notify(notification.Notice{BenefitID: "b-2"})
	if got := len(n.(*notifier).queue); got != 1 {
		t.Fatalf("queue length: want=1 got=%d", got)
	}
}
