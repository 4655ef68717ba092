package window

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-chatflow/core"
)

// DefaultWindowHours is the vendor-mandated free-messaging interval.
const DefaultWindowHours = 24

// Tracker manages the per-contact messaging window: every inbound customer
// message opens or resets a window; once it lapses only approved template
// sends are allowed until the contact writes again.
type Tracker struct {
	store  core.WindowStore
	logger core.Logger
	hours  int
	now    func() time.Time
}

type TrackerConfig struct {
	Store  core.WindowStore
	Logger core.Logger
	Hours  int
	Now    func() time.Time
}

func NewTracker(cfg TrackerConfig) *Tracker {
	tracker := &Tracker{
		store:  cfg.Store,
		logger: cfg.Logger,
		hours:  cfg.Hours,
		now:    cfg.Now,
	}
	if tracker.logger == nil {
		tracker.logger = glog.Nop()
	}
	if tracker.hours <= 0 {
		tracker.hours = DefaultWindowHours
	}
	if tracker.now == nil {
		tracker.now = func() time.Time { return time.Now().UTC() }
	}
	return tracker
}

func (t *Tracker) clock() time.Time {
	if t == nil || t.now == nil {
		return time.Now().UTC()
	}
	return t.now().UTC()
}

// Create opens a fresh window for the contact starting now.
func (t *Tracker) Create(ctx context.Context, tenantID, contactID string) (core.ConversationWindow, error) {
	if t == nil || t.store == nil {
		return core.ConversationWindow{}, windowBadInput("window tracker is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	contactID = strings.TrimSpace(contactID)
	if tenantID == "" || contactID == "" {
		return core.ConversationWindow{}, windowBadInput("tenant id and contact id are required", nil)
	}

	now := t.clock()
	window := core.ConversationWindow{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ContactID: contactID,
		StartedAt: now,
		EndsAt:    now.Add(time.Duration(t.hours) * time.Hour),
		Status:    core.WindowStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := t.store.Upsert(ctx, window)
	if err != nil {
		return core.ConversationWindow{}, windowPersistence(err, "window create failed", map[string]any{
			"tenant_id":  tenantID,
			"contact_id": contactID,
		})
	}
	return saved, nil
}

// Reset restarts the window clock on inbound customer activity. A missing
// window is created; an expired or extended one snaps back to a full
// interval in active status.
func (t *Tracker) Reset(ctx context.Context, tenantID, contactID string) (core.ConversationWindow, error) {
	if t == nil || t.store == nil {
		return core.ConversationWindow{}, windowBadInput("window tracker is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	contactID = strings.TrimSpace(contactID)
	if tenantID == "" || contactID == "" {
		return core.ConversationWindow{}, windowBadInput("tenant id and contact id are required", nil)
	}

	existing, err := t.store.Get(ctx, tenantID, contactID)
	if err != nil {
		if errors.Is(err, core.ErrWindowNotFound) {
			return t.Create(ctx, tenantID, contactID)
		}
		return core.ConversationWindow{}, windowPersistence(err, "window lookup failed", map[string]any{
			"tenant_id":  tenantID,
			"contact_id": contactID,
		})
	}

	now := t.clock()
	existing.StartedAt = now
	existing.EndsAt = now.Add(time.Duration(t.hours) * time.Hour)
	if existing.Status != core.WindowStatusActive {
		if err := existing.TransitionTo(core.WindowStatusActive, now); err != nil {
			return core.ConversationWindow{}, windowWrapError(err, goerrors.CategoryOperation,
				"window reset transition rejected", 0, core.ErrorWindowUnknown, nil)
		}
	}
	existing.UpdatedAt = now

	saved, err := t.store.Upsert(ctx, existing)
	if err != nil {
		return core.ConversationWindow{}, windowPersistence(err, "window reset failed", map[string]any{
			"tenant_id":  tenantID,
			"contact_id": contactID,
		})
	}
	return saved, nil
}

// Status reports the effective window status, always derived from the stored
// ends-at rather than the persisted flag. A contact with no window yet is
// Unknown.
func (t *Tracker) Status(ctx context.Context, tenantID, contactID string) (core.WindowStatus, error) {
	if t == nil || t.store == nil {
		return core.WindowStatusUnknown, windowBadInput("window tracker is not configured", nil)
	}
	window, err := t.store.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(contactID))
	if err != nil {
		if errors.Is(err, core.ErrWindowNotFound) {
			return core.WindowStatusUnknown, nil
		}
		return core.WindowStatusUnknown, windowPersistence(err, "window lookup failed", map[string]any{
			"tenant_id":  tenantID,
			"contact_id": contactID,
		})
	}
	return window.StatusAt(t.clock()), nil
}

// Extend pushes the window forward by the given number of hours and marks it
// manually extended. Extending a missing window fails: there is nothing to
// extend until the contact has messaged at least once.
func (t *Tracker) Extend(ctx context.Context, tenantID, contactID string, hours int) (core.ConversationWindow, error) {
	if t == nil || t.store == nil {
		return core.ConversationWindow{}, windowBadInput("window tracker is not configured", nil)
	}
	if hours <= 0 {
		return core.ConversationWindow{}, windowBadInput("extension hours must be positive", map[string]any{
			"hours": hours,
		})
	}

	window, err := t.store.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(contactID))
	if err != nil {
		if errors.Is(err, core.ErrWindowNotFound) {
			return core.ConversationWindow{}, windowWrapError(err, goerrors.CategoryNotFound,
				"no window to extend", 0, core.ErrorWindowUnknown, map[string]any{
					"tenant_id":  tenantID,
					"contact_id": contactID,
				})
		}
		return core.ConversationWindow{}, windowPersistence(err, "window lookup failed", nil)
	}

	now := t.clock()
	base := window.EndsAt
	if base.Before(now) {
		base = now
	}
	window.EndsAt = base.Add(time.Duration(hours) * time.Hour)
	if window.Status != core.WindowStatusManuallyExtended {
		if err := window.TransitionTo(core.WindowStatusManuallyExtended, now); err != nil {
			return core.ConversationWindow{}, windowWrapError(err, goerrors.CategoryOperation,
				"window extend transition rejected", 0, core.ErrorWindowUnknown, nil)
		}
	}
	window.UpdatedAt = now

	saved, err := t.store.Upsert(ctx, window)
	if err != nil {
		return core.ConversationWindow{}, windowPersistence(err, "window extend failed", nil)
	}

	t.logger.Info("window manually extended",
		"tenant_id", saved.TenantID,
		"contact_id", saved.ContactID,
		"ends_at", saved.EndsAt,
	)
	return saved, nil
}

// Sweep marks every due window expired for the tenant. The store performs a
// single set-based update, so concurrent sweeps are idempotent and never
// double-count.
func (t *Tracker) Sweep(ctx context.Context, tenantID string) (int64, error) {
	if t == nil || t.store == nil {
		return 0, windowBadInput("window tracker is not configured", nil)
	}
	expired, err := t.store.ExpireDue(ctx, strings.TrimSpace(tenantID), t.clock())
	if err != nil {
		return 0, windowPersistence(err, "window sweep failed", map[string]any{
			"tenant_id": tenantID,
		})
	}
	if expired > 0 {
		t.logger.Info("window sweep expired windows",
			"tenant_id", tenantID,
			"count", expired,
		)
	}
	return expired, nil
}

// CanSendFree reports whether a free-form message may be sent right now.
// Unknown counts as not sendable: no inbound contact, no window.
func (t *Tracker) CanSendFree(ctx context.Context, tenantID, contactID string) (bool, core.WindowStatus, error) {
	status, err := t.Status(ctx, tenantID, contactID)
	if err != nil {
		return false, status, err
	}
	return status.Sendable(), status, nil
}

// CanSendTemplate reports whether the given template may be sent regardless
// of window state. Only approved templates bypass the window.
func (t *Tracker) CanSendTemplate(template core.Template) bool {
	return template.Approved()
}
