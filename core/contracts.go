package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// FlowStore is the read-only authoring surface the router consumes. Flow
// creation and editing happen outside this module.
type FlowStore interface {
	GetFlow(ctx context.Context, tenantID string, flowID string) (Flow, error)
	GetMainFlow(ctx context.Context, tenantID string) (Flow, error)
	GetNode(ctx context.Context, flowID string, nodeID string) (Node, error)
	ListNodes(ctx context.Context, flowID string) ([]Node, error)
}

// ConversationStateStore persists the per-conversation cursor. Update must
// enforce the optimistic version check: a write against a stale Version
// fails with ErrStateVersionConflict and nothing is applied.
type ConversationStateStore interface {
	Get(ctx context.Context, key ConversationKey) (ConversationState, error)
	// GetActive returns the contact's single live state regardless of which
	// flow it currently sits in (a jump may have moved it off the main flow).
	GetActive(ctx context.Context, tenantID string, contactID string) (ConversationState, error)
	Create(ctx context.Context, state ConversationState) (ConversationState, error)
	Update(ctx context.Context, state ConversationState) (ConversationState, error)
	Deactivate(ctx context.Context, key ConversationKey) error
	DeactivateStale(ctx context.Context, tenantID string, inactiveSince time.Time) (int64, error)
}

// WindowStore persists conversation windows. ExpireDue must be an atomic
// set-based update so concurrent sweep workers cannot double-count.
type WindowStore interface {
	Get(ctx context.Context, tenantID string, contactID string) (ConversationWindow, error)
	Upsert(ctx context.Context, window ConversationWindow) (ConversationWindow, error)
	ExpireDue(ctx context.Context, tenantID string, now time.Time) (int64, error)
}

type TemplateStore interface {
	Get(ctx context.Context, tenantID string, name string) (Template, error)
	UpsertStatus(ctx context.Context, tenantID string, name string, language string, status TemplateStatus) (Template, error)
}

// CredentialResolver returns decrypted tenant provider material. Resolution
// strategy (per-tenant rows, env fallback) lives outside this module.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string) (TenantCredentials, error)
}

// EventSink is the append-only audit stream for conversation turns.
type EventSink interface {
	RecordTurn(ctx context.Context, event TurnEvent) error
}

// StatusTracker receives provider delivery-status callbacks for previously
// dispatched messages.
type StatusTracker interface {
	TrackStatus(ctx context.Context, update StatusUpdate) error
}

type AlertEvent struct {
	TenantID string
	Kind     string
	Message  string
	Metadata map[string]any
}

// Alerter is the notification layer triggered by, but not implemented in,
// this module.
type Alerter interface {
	Alert(ctx context.Context, event AlertEvent) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type ProviderSendResult struct {
	MessageID  string
	StatusCode int
	Metadata   map[string]any
}

type TemplateSend struct {
	Name       string
	Language   string
	Parameters []string
}

type InteractiveSend struct {
	Body    string
	Buttons []string
}

// SendClient is the outbound provider surface. Implementations map these
// calls onto the vendor messaging API.
type SendClient interface {
	SendText(ctx context.Context, creds TenantCredentials, to string, text string) (ProviderSendResult, error)
	SendTemplate(ctx context.Context, creds TenantCredentials, to string, template TemplateSend) (ProviderSendResult, error)
	SendInteractive(ctx context.Context, creds TenantCredentials, to string, message InteractiveSend) (ProviderSendResult, error)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
