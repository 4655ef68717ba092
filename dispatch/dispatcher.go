package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/ratelimit"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
)

// WindowChecker is the slice of the window tracker the dispatcher consults
// before a free-form send.
type WindowChecker interface {
	CanSendFree(ctx context.Context, tenantID, contactID string) (bool, core.WindowStatus, error)
}

// RateLimiter reserves one send slot per call; over-budget reservations fail
// with a ratelimit.ThrottledError.
type RateLimiter interface {
	Reserve(ctx context.Context, tenantID string) error
}

// Dispatcher pushes outbound messages through the provider client: window
// gate for free-form sends, per-tenant rate limit for everything, bounded
// retries with exponential backoff on transient provider failures.
type Dispatcher struct {
	client      core.SendClient
	credentials core.CredentialResolver
	window      WindowChecker
	limiter     RateLimiter
	templates   core.TemplateStore
	logger      core.Logger

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
}

type DispatcherConfig struct {
	Client         core.SendClient
	Credentials    core.CredentialResolver
	Window         WindowChecker
	RateLimiter    RateLimiter
	Templates      core.TemplateStore
	Logger         core.Logger
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
	Sleep          func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	dispatcher := &Dispatcher{
		client:         cfg.Client,
		credentials:    cfg.Credentials,
		window:         cfg.Window,
		limiter:        cfg.RateLimiter,
		templates:      cfg.Templates,
		logger:         cfg.Logger,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		now:            cfg.Now,
		sleep:          cfg.Sleep,
	}
	if dispatcher.logger == nil {
		dispatcher.logger = glog.Nop()
	}
	if dispatcher.maxAttempts <= 0 {
		dispatcher.maxAttempts = DefaultMaxAttempts
	}
	if dispatcher.initialBackoff <= 0 {
		dispatcher.initialBackoff = DefaultInitialBackoff
	}
	if dispatcher.maxBackoff <= 0 {
		dispatcher.maxBackoff = DefaultMaxBackoff
	}
	if dispatcher.now == nil {
		dispatcher.now = func() time.Time { return time.Now().UTC() }
	}
	if dispatcher.sleep == nil {
		dispatcher.sleep = sleepWithContext
	}
	return dispatcher
}

// SendText sends a free-form text message. The messaging window must be
// open.
func (d *Dispatcher) SendText(ctx context.Context, tenantID, contactID, text string) (core.DispatchResult, error) {
	if err := d.checkReady(tenantID, contactID); err != nil {
		return d.failure(0, err), err
	}
	if err := d.checkWindow(ctx, tenantID, contactID); err != nil {
		return d.failure(0, err), err
	}
	return d.send(ctx, tenantID, func(ctx context.Context, creds core.TenantCredentials) (core.ProviderSendResult, error) {
		return d.client.SendText(ctx, creds, contactID, text)
	})
}

// SendInteractive sends a free-form interactive message (body + buttons).
// Window rules match SendText.
func (d *Dispatcher) SendInteractive(ctx context.Context, tenantID, contactID string, message core.InteractiveSend) (core.DispatchResult, error) {
	if err := d.checkReady(tenantID, contactID); err != nil {
		return d.failure(0, err), err
	}
	if err := d.checkWindow(ctx, tenantID, contactID); err != nil {
		return d.failure(0, err), err
	}
	return d.send(ctx, tenantID, func(ctx context.Context, creds core.TenantCredentials) (core.ProviderSendResult, error) {
		return d.client.SendInteractive(ctx, creds, contactID, message)
	})
}

// SendTemplate sends an approved template. Templates bypass the window but
// never the rate limit, and an unapproved template is rejected before any
// provider call.
func (d *Dispatcher) SendTemplate(ctx context.Context, tenantID, contactID string, template core.TemplateSend) (core.DispatchResult, error) {
	if err := d.checkReady(tenantID, contactID); err != nil {
		return d.failure(0, err), err
	}
	if strings.TrimSpace(template.Name) == "" {
		err := dispatchBadInput("template name is required", nil)
		return d.failure(0, err), err
	}
	if d.templates != nil {
		stored, err := d.templates.Get(ctx, tenantID, template.Name)
		if err != nil {
			wrapped := dispatchWrapError(err, goerrors.CategoryNotFound,
				"template lookup failed", 0, core.ErrorBadInput, map[string]any{
					"tenant_id": tenantID,
					"template":  template.Name,
				})
			return d.failure(0, wrapped), wrapped
		}
		if !stored.Approved() {
			err := dispatchBadInput("template is not approved for sending", map[string]any{
				"tenant_id": tenantID,
				"template":  template.Name,
				"status":    string(stored.Status),
			})
			return d.failure(0, err), err
		}
	}
	return d.send(ctx, tenantID, func(ctx context.Context, creds core.TenantCredentials) (core.ProviderSendResult, error) {
		return d.client.SendTemplate(ctx, creds, contactID, template)
	})
}

func (d *Dispatcher) checkReady(tenantID, contactID string) error {
	if d == nil || d.client == nil {
		return dispatchBadInput("dispatcher is not configured", nil)
	}
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(contactID) == "" {
		return dispatchBadInput("tenant id and contact id are required", nil)
	}
	return nil
}

func (d *Dispatcher) checkWindow(ctx context.Context, tenantID, contactID string) error {
	if d.window == nil {
		return nil
	}
	ok, status, err := d.window.CanSendFree(ctx, tenantID, contactID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if status == core.WindowStatusUnknown {
		return windowUnknownError(tenantID, contactID)
	}
	return windowExpiredError(tenantID, contactID)
}

func (d *Dispatcher) send(ctx context.Context, tenantID string, call func(context.Context, core.TenantCredentials) (core.ProviderSendResult, error)) (core.DispatchResult, error) {
	if d.limiter != nil {
		if err := d.limiter.Reserve(ctx, tenantID); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				svcErr := throttled.ToServiceError()
				return d.failure(0, svcErr), svcErr
			}
			return d.failure(0, err), err
		}
	}

	creds := core.TenantCredentials{TenantID: tenantID}
	if d.credentials != nil {
		resolved, err := d.credentials.Resolve(ctx, tenantID)
		if err != nil {
			wrapped := dispatchWrapError(err, goerrors.CategoryInternal,
				"tenant credential resolution failed", 0, core.ErrorInternal, map[string]any{
					"tenant_id": tenantID,
				})
			return d.failure(0, wrapped), wrapped
		}
		creds = resolved
	}

	var lastErr error
	backoff := d.initialBackoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		providerResult, err := call(ctx, creds)
		if err == nil && !transientStatus(providerResult.StatusCode) {
			return core.DispatchResult{
				Success:           true,
				ProviderMessageID: providerResult.MessageID,
				Attempts:          attempt,
				Timestamp:         d.now(),
			}, nil
		}

		if err != nil {
			lastErr = err
			if !retryable(err) {
				return d.failure(attempt, err), err
			}
		} else {
			lastErr = dispatchError("provider returned transient status", goerrors.CategoryExternal,
				providerResult.StatusCode, core.ErrorDispatchFailed, nil)
		}

		if attempt == d.maxAttempts {
			break
		}
		d.logger.Info("provider send failed, backing off",
			"tenant_id", tenantID,
			"attempt", attempt,
			"backoff", backoff,
		)
		if err := d.sleep(ctx, backoff); err != nil {
			return d.failure(attempt, err), err
		}
		backoff *= 2
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
	}

	failed := dispatchFailedError(lastErr, d.maxAttempts, map[string]any{"tenant_id": tenantID})
	return d.failure(d.maxAttempts, failed), failed
}

func (d *Dispatcher) failure(attempts int, err error) core.DispatchResult {
	result := core.DispatchResult{
		Success:   false,
		Attempts:  attempts,
		Timestamp: d.now(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// retryable treats provider errors as transient unless they are clearly
// permanent: bad input, auth, or validation failures never heal on retry.
func retryable(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation,
			goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound:
			return false
		}
	}
	return true
}

func transientStatus(statusCode int) bool {
	return statusCode == 429 || statusCode >= 500
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
