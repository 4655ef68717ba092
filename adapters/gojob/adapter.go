// Package gojob bridges the module's job contracts to go-job queues so
// inbound work and sweeps can run off a durable queue.
package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-chatflow/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDWindowSweep       = "chatflow.window.sweep"
	JobIDSessionSweep      = "chatflow.session.sweep_stale"
	JobIDOutboundDispatch  = "chatflow.dispatch.outbound"
	JobIDTemplateStatusRef = "chatflow.template.status_refresh"
)

// RetryPolicy bounds queue redelivery so a poisoned message cannot loop
// forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps nack options to the policy for the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func toJobMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromJobMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func toNackOptions(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionRetry
	if opts.DeadLetter {
		disposition = queue.NackDispositionDeadLetter
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
}

// QueueEnqueuer exposes a go-job enqueuer through the core.JobEnqueuer
// contract.
type QueueEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewQueueEnqueuer(enqueuer queue.Enqueuer) *QueueEnqueuer {
	return &QueueEnqueuer{enqueuer: enqueuer}
}

func (a *QueueEnqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, toJobMessage(msg))
	return err
}

// QueueDelivery wraps a go-job delivery and applies the retry policy to
// every nack.
type QueueDelivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewQueueDelivery(delivery queue.Delivery, policy RetryPolicy) *QueueDelivery {
	return &QueueDelivery{delivery: delivery, policy: policy}
}

func (d *QueueDelivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return fromJobMessage(d.delivery.Message())
}

func (d *QueueDelivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *QueueDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *QueueDelivery) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, toNackOptions(d.policy.NormalizeAttempt(opts, attempt)))
}

// QueueDequeuer hands out policy-wrapped deliveries.
type QueueDequeuer struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewQueueDequeuer(dequeuer queue.Dequeuer, policy RetryPolicy) *QueueDequeuer {
	return &QueueDequeuer{dequeuer: dequeuer, policy: policy}
}

func (a *QueueDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewQueueDelivery(delivery, a.policy), nil
}

// WorkerHookBridge forwards go-job worker lifecycle events to a
// core.JobWorkerHook.
type WorkerHookBridge struct {
	hook core.JobWorkerHook
}

func NewWorkerHookBridge(hook core.JobWorkerHook) *WorkerHookBridge {
	return &WorkerHookBridge{hook: hook}
}

func (a *WorkerHookBridge) OnStart(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnStart(ctx, mapWorkerEvent(event))
	}
}

func (a *WorkerHookBridge) OnSuccess(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnSuccess(ctx, mapWorkerEvent(event))
	}
}

func (a *WorkerHookBridge) OnFailure(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnFailure(ctx, mapWorkerEvent(event))
	}
}

func (a *WorkerHookBridge) OnRetry(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnRetry(ctx, mapWorkerEvent(event))
	}
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   fromJobMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func cloneParams(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	return maps.Clone(in)
}

var (
	_ core.JobEnqueuer = (*QueueEnqueuer)(nil)
	_ core.JobDelivery = (*QueueDelivery)(nil)
	_ core.JobDequeuer = (*QueueDequeuer)(nil)
	_ worker.Hook      = (*WorkerHookBridge)(nil)
)
