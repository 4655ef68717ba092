package window

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-chatflow/core"
)

func newTestTracker(t *testing.T, start time.Time) (*Tracker, *MemoryStore, *time.Time) {
	t.Helper()
	current := start
	store := NewMemoryStore()
	tracker := NewTracker(TrackerConfig{
		Store: store,
		Now:   func() time.Time { return current },
	})
	return tracker, store, &current
}

func TestTrackerCreateAndStatus(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker, _, clock := newTestTracker(t, start)
	ctx := context.Background()

	status, err := tracker.Status(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status != core.WindowStatusUnknown {
		t.Fatalf("expected unknown before first contact, got %s", status)
	}

	window, err := tracker.Create(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if want := start.Add(24 * time.Hour); !window.EndsAt.Equal(want) {
		t.Fatalf("expected ends-at %s, got %s", want, window.EndsAt)
	}

	status, err = tracker.Status(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status != core.WindowStatusActive {
		t.Fatalf("expected active, got %s", status)
	}

	*clock = start.Add(24*time.Hour + time.Minute)
	status, err = tracker.Status(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status != core.WindowStatusExpired {
		t.Fatalf("expected expired, got %s", status)
	}
}

func TestTrackerResetCreatesAndRestarts(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker, _, clock := newTestTracker(t, start)
	ctx := context.Background()

	// reset without a window behaves like create
	window, err := tracker.Reset(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if window.Status != core.WindowStatusActive {
		t.Fatalf("expected active, got %s", window.Status)
	}

	// inbound activity 30h later reopens the lapsed window
	*clock = start.Add(30 * time.Hour)
	window, err = tracker.Reset(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if window.Status != core.WindowStatusActive {
		t.Fatalf("expected active after reset, got %s", window.Status)
	}
	if want := clock.Add(24 * time.Hour); !window.EndsAt.Equal(want) {
		t.Fatalf("expected ends-at %s, got %s", want, window.EndsAt)
	}

	ok, status, err := tracker.CanSendFree(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("can-send check failed: %v", err)
	}
	if !ok || status != core.WindowStatusActive {
		t.Fatalf("expected sendable active window, got %v/%s", ok, status)
	}
}

func TestTrackerExtend(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker, _, clock := newTestTracker(t, start)
	ctx := context.Background()

	if _, err := tracker.Extend(ctx, "t1", "c1", 12); err == nil {
		t.Fatal("extending a missing window should fail")
	}

	if _, err := tracker.Create(ctx, "t1", "c1"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	window, err := tracker.Extend(ctx, "t1", "c1", 12)
	if err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if window.Status != core.WindowStatusManuallyExtended {
		t.Fatalf("expected manually_extended, got %s", window.Status)
	}
	if want := start.Add(36 * time.Hour); !window.EndsAt.Equal(want) {
		t.Fatalf("expected ends-at %s, got %s", want, window.EndsAt)
	}

	ok, status, err := tracker.CanSendFree(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("can-send check failed: %v", err)
	}
	if !ok || status != core.WindowStatusManuallyExtended {
		t.Fatalf("manual extension should allow sends, got %v/%s", ok, status)
	}

	// extending an already-lapsed window anchors at now, not ends-at
	*clock = start.Add(48 * time.Hour)
	window, err = tracker.Extend(ctx, "t1", "c1", 2)
	if err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if want := clock.Add(2 * time.Hour); !window.EndsAt.Equal(want) {
		t.Fatalf("expected ends-at %s, got %s", want, window.EndsAt)
	}

	if _, err := tracker.Extend(ctx, "t1", "c1", 0); err == nil {
		t.Fatal("zero-hour extension should be rejected")
	}
}

func TestTrackerSweepIsIdempotent(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker, _, clock := newTestTracker(t, start)
	ctx := context.Background()

	if _, err := tracker.Create(ctx, "t1", "c1"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := tracker.Create(ctx, "t1", "c2"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := tracker.Create(ctx, "t2", "c9"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	*clock = start.Add(25 * time.Hour)
	expired, err := tracker.Sweep(ctx, "t1")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired windows, got %d", expired)
	}

	// second pass finds nothing left to expire
	expired, err = tracker.Sweep(ctx, "t1")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected idempotent sweep, got %d", expired)
	}

	// other tenant's row was not touched by the t1 sweep
	other, err := tracker.Sweep(ctx, "t2")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if other != 1 {
		t.Fatalf("expected t2 window still due, got %d", other)
	}
}

func TestTrackerTemplateBypass(t *testing.T) {
	tracker := NewTracker(TrackerConfig{Store: NewMemoryStore()})

	if tracker.CanSendTemplate(core.Template{Status: core.TemplateStatusPending}) {
		t.Fatal("pending template must not bypass the window")
	}
	if !tracker.CanSendTemplate(core.Template{Status: core.TemplateStatusApproved}) {
		t.Fatal("approved template should bypass the window")
	}
}
