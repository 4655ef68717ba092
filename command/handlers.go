package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/flow"
)

type ConversationService interface {
	HandleInbound(ctx context.Context, msg core.InboundMessage) (flow.Result, error)
}

type DispatchService interface {
	SendText(ctx context.Context, tenantID string, contactID string, text string) (core.DispatchResult, error)
	SendInteractive(ctx context.Context, tenantID string, contactID string, message core.InteractiveSend) (core.DispatchResult, error)
	SendTemplate(ctx context.Context, tenantID string, contactID string, template core.TemplateSend) (core.DispatchResult, error)
}

type WindowService interface {
	Extend(ctx context.Context, tenantID string, contactID string, hours int) (core.ConversationWindow, error)
	Sweep(ctx context.Context, tenantID string) (int64, error)
}

type AuthoringService interface {
	SaveFlow(ctx context.Context, flow core.Flow, nodes []core.Node) (core.Flow, error)
	UpsertTemplateStatus(ctx context.Context, tenantID string, name string, language string, status core.TemplateStatus) (core.Template, error)
	SaveCredentials(ctx context.Context, creds core.TenantCredentials) error
}

type SessionService interface {
	DeactivateStale(ctx context.Context, tenantID string, inactiveSince time.Time) (int64, error)
}

type ProcessInboundCommand struct {
	service ConversationService
}

func NewProcessInboundCommand(service ConversationService) *ProcessInboundCommand {
	return &ProcessInboundCommand{service: service}
}

func (c *ProcessInboundCommand) Execute(ctx context.Context, msg ProcessInboundMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: conversation service is required")
	}
	out, err := c.service.HandleInbound(ctx, msg.Message)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendTextCommand struct {
	service DispatchService
}

func NewSendTextCommand(service DispatchService) *SendTextCommand {
	return &SendTextCommand{service: service}
}

func (c *SendTextCommand) Execute(ctx context.Context, msg SendTextMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.SendText(ctx, msg.TenantID, msg.ContactID, msg.Text)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendInteractiveCommand struct {
	service DispatchService
}

func NewSendInteractiveCommand(service DispatchService) *SendInteractiveCommand {
	return &SendInteractiveCommand{service: service}
}

func (c *SendInteractiveCommand) Execute(ctx context.Context, msg SendInteractiveMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.SendInteractive(ctx, msg.TenantID, msg.ContactID, msg.Message)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendTemplateCommand struct {
	service DispatchService
}

func NewSendTemplateCommand(service DispatchService) *SendTemplateCommand {
	return &SendTemplateCommand{service: service}
}

func (c *SendTemplateCommand) Execute(ctx context.Context, msg SendTemplateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.SendTemplate(ctx, msg.TenantID, msg.ContactID, msg.Template)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ExtendWindowCommand struct {
	service WindowService
}

func NewExtendWindowCommand(service WindowService) *ExtendWindowCommand {
	return &ExtendWindowCommand{service: service}
}

func (c *ExtendWindowCommand) Execute(ctx context.Context, msg ExtendWindowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: window service is required")
	}
	out, err := c.service.Extend(ctx, msg.TenantID, msg.ContactID, msg.Hours)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SweepWindowsCommand struct {
	service WindowService
}

func NewSweepWindowsCommand(service WindowService) *SweepWindowsCommand {
	return &SweepWindowsCommand{service: service}
}

func (c *SweepWindowsCommand) Execute(ctx context.Context, msg SweepWindowsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: window service is required")
	}
	out, err := c.service.Sweep(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterFlowCommand struct {
	service AuthoringService
}

func NewRegisterFlowCommand(service AuthoringService) *RegisterFlowCommand {
	return &RegisterFlowCommand{service: service}
}

func (c *RegisterFlowCommand) Execute(ctx context.Context, msg RegisterFlowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authoring service is required")
	}
	out, err := c.service.SaveFlow(ctx, msg.Flow, msg.Nodes)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertTemplateStatusCommand struct {
	service AuthoringService
}

func NewUpsertTemplateStatusCommand(service AuthoringService) *UpsertTemplateStatusCommand {
	return &UpsertTemplateStatusCommand{service: service}
}

func (c *UpsertTemplateStatusCommand) Execute(ctx context.Context, msg UpsertTemplateStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authoring service is required")
	}
	out, err := c.service.UpsertTemplateStatus(ctx, msg.TenantID, msg.Name, msg.Language, msg.Status)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SaveCredentialsCommand struct {
	service AuthoringService
}

func NewSaveCredentialsCommand(service AuthoringService) *SaveCredentialsCommand {
	return &SaveCredentialsCommand{service: service}
}

func (c *SaveCredentialsCommand) Execute(ctx context.Context, msg SaveCredentialsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authoring service is required")
	}
	return c.service.SaveCredentials(ctx, msg.Credentials)
}

type SweepStaleSessionsCommand struct {
	service SessionService
}

func NewSweepStaleSessionsCommand(service SessionService) *SweepStaleSessionsCommand {
	return &SweepStaleSessionsCommand{service: service}
}

func (c *SweepStaleSessionsCommand) Execute(ctx context.Context, msg SweepStaleSessionsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.DeactivateStale(ctx, msg.TenantID, msg.InactiveSince)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
