package webhooks

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-chatflow/core"
)

// Request is one raw webhook delivery as received over the wire.
type Request struct {
	TenantID string
	Headers  map[string]string
	Body     []byte
}

// Result summarizes one processed delivery. Status is "ok" for supported
// payloads and "ignored" for unknown objects; the endpoint acknowledges 200
// either way.
type Result struct {
	Status           string
	MessagesRouted   int
	MessagesDeduped  int
	MessagesFailed   int
	StatusesTracked  int
	TemplatesUpdated int
}

const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
)

// MessageHandler receives each unique inbound contact message after the
// window has been reset. The flow router sits behind this seam.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg core.InboundMessage) error
}

type MessageHandlerFunc func(ctx context.Context, msg core.InboundMessage) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg core.InboundMessage) error {
	return f(ctx, msg)
}

// WindowResetter is the slice of the window tracker the processor needs.
type WindowResetter interface {
	Reset(ctx context.Context, tenantID, contactID string) (core.ConversationWindow, error)
}

// Processor turns raw webhook deliveries into routed messages, tracked
// statuses, and template updates. Item-level failures are logged and
// skipped so one bad entry never blocks the rest of the batch.
type Processor struct {
	Verifier      *SignatureVerifier
	Ledger        DeliveryLedger
	Handler       MessageHandler
	Window        WindowResetter
	StatusTracker core.StatusTracker
	Templates     core.TemplateStore
	Logger        core.Logger
	ClaimLease    time.Duration
	Now           func() time.Time
}

type ProcessorConfig struct {
	Verifier      *SignatureVerifier
	Ledger        DeliveryLedger
	Handler       MessageHandler
	Window        WindowResetter
	StatusTracker core.StatusTracker
	Templates     core.TemplateStore
	Logger        core.Logger
	ClaimLease    time.Duration
	Now           func() time.Time
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	processor := &Processor{
		Verifier:      cfg.Verifier,
		Ledger:        cfg.Ledger,
		Handler:       cfg.Handler,
		Window:        cfg.Window,
		StatusTracker: cfg.StatusTracker,
		Templates:     cfg.Templates,
		Logger:        cfg.Logger,
		ClaimLease:    cfg.ClaimLease,
		Now:           cfg.Now,
	}
	if processor.Logger == nil {
		processor.Logger = glog.Nop()
	}
	if processor.Ledger == nil {
		processor.Ledger = NewMemoryDeliveryLedger()
	}
	if processor.ClaimLease <= 0 {
		processor.ClaimLease = 30 * time.Second
	}
	if processor.Now == nil {
		processor.Now = func() time.Time { return time.Now().UTC() }
	}
	return processor
}

// Process verifies, parses, and fans out one webhook delivery.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.Handler == nil {
		return Result{}, webhookBadInput("webhook processor requires a message handler", nil)
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return Result{}, webhookBadInput("tenant id is required", nil)
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, tenantID, req.Headers, req.Body); err != nil {
			return Result{}, err
		}
	}

	envelope, err := ParseEnvelope(req.Body)
	if err != nil {
		return Result{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(envelope.Object), SupportedObject) {
		p.Logger.Info("ignoring unsupported webhook object",
			"tenant_id", tenantID,
			"object", envelope.Object,
		)
		return Result{Status: StatusIgnored}, nil
	}

	result := Result{Status: StatusOK}
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			switch strings.TrimSpace(change.Field) {
			case FieldMessages:
				p.processMessagesChange(ctx, tenantID, change, &result)
			case FieldTemplateStatusUpdate:
				p.processTemplateChange(ctx, tenantID, change, &result)
			default:
				p.Logger.Info("skipping unsupported change field",
					"tenant_id", tenantID,
					"field", change.Field,
				)
			}
		}
	}
	return result, nil
}

func (p *Processor) processMessagesChange(ctx context.Context, tenantID string, change Change, result *Result) {
	value, err := change.MessagesValue()
	if err != nil {
		p.Logger.Error("malformed messages change skipped",
			"tenant_id", tenantID,
			"error", err,
		)
		result.MessagesFailed++
		return
	}

	for _, status := range value.Statuses {
		p.trackStatus(ctx, tenantID, status, result)
	}

	for _, message := range value.Messages {
		p.routeMessage(ctx, tenantID, value.Metadata.PhoneNumberID, message, result)
	}
}

func (p *Processor) trackStatus(ctx context.Context, tenantID string, status MessageStatus, result *Result) {
	if p.StatusTracker == nil {
		return
	}
	update := core.StatusUpdate{
		TenantID:    tenantID,
		MessageID:   strings.TrimSpace(status.ID),
		Status:      strings.TrimSpace(status.Status),
		RecipientID: strings.TrimSpace(status.RecipientID),
		Timestamp:   status.OccurredAt(),
	}
	if err := p.StatusTracker.TrackStatus(ctx, update); err != nil {
		p.Logger.Error("status update skipped",
			"tenant_id", tenantID,
			"message_id", update.MessageID,
			"error", err,
		)
		return
	}
	result.StatusesTracked++
}

func (p *Processor) routeMessage(ctx context.Context, tenantID, phoneNumberID string, message Message, result *Result) {
	contactID := strings.TrimSpace(message.From)
	messageID := strings.TrimSpace(message.ID)
	if contactID == "" || messageID == "" {
		p.Logger.Error("message without sender or id skipped",
			"tenant_id", tenantID,
		)
		result.MessagesFailed++
		return
	}

	delivery, claimed, err := p.Ledger.Claim(ctx, tenantID, messageID, p.ClaimLease)
	if err != nil {
		p.Logger.Error("delivery claim failed, message skipped",
			"tenant_id", tenantID,
			"message_id", messageID,
			"error", err,
		)
		result.MessagesFailed++
		return
	}
	if !claimed {
		result.MessagesDeduped++
		return
	}

	// inbound contact activity always reopens the messaging window, even if
	// routing fails afterwards
	if p.Window != nil {
		if _, err := p.Window.Reset(ctx, tenantID, contactID); err != nil {
			p.Logger.Error("window reset failed",
				"tenant_id", tenantID,
				"contact_id", contactID,
				"error", err,
			)
		}
	}

	sentAt := message.SentAt()
	if sentAt.IsZero() {
		sentAt = p.Now()
	}
	inbound := core.InboundMessage{
		TenantID:      tenantID,
		ContactID:     contactID,
		MessageID:     messageID,
		PhoneNumberID: strings.TrimSpace(phoneNumberID),
		Type:          strings.TrimSpace(message.Type),
		Text:          message.Body(),
		Timestamp:     sentAt,
	}

	if err := p.Handler.HandleMessage(ctx, inbound); err != nil {
		p.Logger.Error("message routing failed",
			"tenant_id", tenantID,
			"message_id", messageID,
			"error", err,
		)
		if failErr := p.Ledger.Fail(ctx, delivery.ClaimID, err); failErr != nil {
			p.Logger.Error("delivery fail mark rejected",
				"claim_id", delivery.ClaimID,
				"error", failErr,
			)
		}
		result.MessagesFailed++
		return
	}

	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		p.Logger.Error("delivery completion mark rejected",
			"claim_id", delivery.ClaimID,
			"error", err,
		)
	}
	result.MessagesRouted++
}

func (p *Processor) processTemplateChange(ctx context.Context, tenantID string, change Change, result *Result) {
	if p.Templates == nil {
		return
	}
	value, err := change.TemplateStatusValue()
	if err != nil {
		p.Logger.Error("malformed template status change skipped",
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}
	name := strings.TrimSpace(value.MessageTemplateName)
	if name == "" {
		return
	}

	status := core.TemplateStatusPending
	switch strings.ToUpper(strings.TrimSpace(value.Event)) {
	case "APPROVED":
		status = core.TemplateStatusApproved
	case "REJECTED":
		status = core.TemplateStatusRejected
	case "PENDING", "IN_APPEAL":
		status = core.TemplateStatusPending
	default:
		p.Logger.Info("unknown template event skipped",
			"tenant_id", tenantID,
			"event", value.Event,
		)
		return
	}

	if _, err := p.Templates.UpsertStatus(ctx, tenantID, name, strings.TrimSpace(value.MessageTemplateLanguage), status); err != nil {
		p.Logger.Error("template status upsert failed",
			"tenant_id", tenantID,
			"template", name,
			"error", err,
		)
		return
	}
	result.TemplatesUpdated++
}
