package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-chatflow/core"
)

const sweepTenantParam = "tenant_id"

// WindowSweeper expires due messaging windows for a tenant.
type WindowSweeper interface {
	Sweep(ctx context.Context, tenantID string) (int64, error)
}

// SessionSweeper deactivates conversation states idle since the cutoff.
type SessionSweeper interface {
	DeactivateStale(ctx context.Context, tenantID string, before time.Time) (int64, error)
}

// ScheduleWindowSweep enqueues a window sweep for the tenant. The idempotency
// key collapses duplicate schedules within the same queue dedup horizon.
func ScheduleWindowSweep(ctx context.Context, enqueuer core.JobEnqueuer, tenantID string) error {
	return scheduleSweep(ctx, enqueuer, JobIDWindowSweep, tenantID)
}

// ScheduleSessionSweep enqueues a stale-session sweep for the tenant.
func ScheduleSessionSweep(ctx context.Context, enqueuer core.JobEnqueuer, tenantID string) error {
	return scheduleSweep(ctx, enqueuer, JobIDSessionSweep, tenantID)
}

func scheduleSweep(ctx context.Context, enqueuer core.JobEnqueuer, jobID string, tenantID string) error {
	if enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is required")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("gojob: tenant id is required")
	}
	return enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          jobID,
		Parameters:     map[string]any{sweepTenantParam: tenantID},
		IdempotencyKey: jobID + ":" + tenantID,
	})
}

// SweepExecutor runs window and stale-session sweep messages dequeued from
// the job queue.
type SweepExecutor struct {
	Windows       WindowSweeper
	Sessions      SessionSweeper
	SessionMaxAge time.Duration
	Logger        glog.Logger
	Now           func() time.Time
}

func (e *SweepExecutor) Execute(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil {
		return fmt.Errorf("gojob: sweep executor is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	tenantID, _ := msg.Parameters[sweepTenantParam].(string)
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("gojob: %s requires a %s parameter", msg.JobID, sweepTenantParam)
	}

	switch msg.JobID {
	case JobIDWindowSweep:
		if e.Windows == nil {
			return fmt.Errorf("gojob: window sweeper is not configured")
		}
		expired, err := e.Windows.Sweep(ctx, tenantID)
		if err != nil {
			return err
		}
		e.logger().Info("window sweep complete", "tenant_id", tenantID, "expired", expired)
		return nil
	case JobIDSessionSweep:
		if e.Sessions == nil {
			return fmt.Errorf("gojob: session sweeper is not configured")
		}
		cutoff := e.now().Add(-e.sessionMaxAge())
		deactivated, err := e.Sessions.DeactivateStale(ctx, tenantID, cutoff)
		if err != nil {
			return err
		}
		e.logger().Info("session sweep complete", "tenant_id", tenantID, "deactivated", deactivated)
		return nil
	default:
		return fmt.Errorf("gojob: unsupported sweep job %q", msg.JobID)
	}
}

func (e *SweepExecutor) logger() glog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return glog.Nop()
}

func (e *SweepExecutor) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *SweepExecutor) sessionMaxAge() time.Duration {
	if e.SessionMaxAge > 0 {
		return e.SessionMaxAge
	}
	return 72 * time.Hour
}
