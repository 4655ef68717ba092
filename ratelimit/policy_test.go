package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSlidingWindowPolicyReserve(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	policy := NewSlidingWindowPolicy(NewMemoryStateStore(), 3, time.Minute)
	policy.Now = func() time.Time { return current }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := policy.Reserve(ctx, "t1"); err != nil {
			t.Fatalf("send %d should be within budget: %v", i+1, err)
		}
	}

	err := policy.Reserve(ctx, "t1")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter <= 0 || throttled.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry hint %s", throttled.RetryAfter)
	}

	svcErr := throttled.ToServiceError()
	if svcErr.Code != 429 {
		t.Fatalf("expected 429, got %d", svcErr.Code)
	}

	// other tenants have their own budget
	if err := policy.Reserve(ctx, "t2"); err != nil {
		t.Fatalf("t2 should have a fresh budget: %v", err)
	}

	// window slides: a minute later the oldest sends fall out
	current = current.Add(61 * time.Second)
	if err := policy.Reserve(ctx, "t1"); err != nil {
		t.Fatalf("budget should replenish after the interval: %v", err)
	}
}

func TestSlidingWindowPolicyRemaining(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	policy := NewSlidingWindowPolicy(NewMemoryStateStore(), 5, time.Minute)
	policy.Now = func() time.Time { return current }
	ctx := context.Background()

	remaining, err := policy.Remaining(ctx, "t1")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected full budget, got %d", remaining)
	}

	if err := policy.Reserve(ctx, "t1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := policy.Reserve(ctx, "t1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	remaining, err = policy.Remaining(ctx, "t1")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected 3 remaining, got %d", remaining)
	}
}

func TestSlidingWindowPolicyConcurrentReserve(t *testing.T) {
	policy := NewSlidingWindowPolicy(NewMemoryStateStore(), 10, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := policy.Reserve(ctx, "t1"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 10 {
		t.Fatalf("expected exactly 10 grants under contention, got %d", granted)
	}
}

func TestSlidingWindowPolicyValidation(t *testing.T) {
	policy := NewSlidingWindowPolicy(NewMemoryStateStore(), 3, time.Minute)
	if err := policy.Reserve(context.Background(), "  "); err == nil {
		t.Fatal("blank tenant id should be rejected")
	}
}
