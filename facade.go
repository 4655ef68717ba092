package chatflow

import (
	"fmt"

	"github.com/goliatone/go-chatflow/command"
	"github.com/goliatone/go-chatflow/query"
)

// CommandQueryService is the full mutating and read surface the facade wires
// command and query handlers against.
type CommandQueryService interface {
	command.ConversationService
	command.DispatchService
	command.WindowService
	command.AuthoringService
	command.SessionService
	query.ConversationStateReader
	query.WindowReader
	query.TranscriptReader
	query.FlowReader
}

type Commands struct {
	ProcessInbound       *command.ProcessInboundCommand
	SendText             *command.SendTextCommand
	SendInteractive      *command.SendInteractiveCommand
	SendTemplate         *command.SendTemplateCommand
	ExtendWindow         *command.ExtendWindowCommand
	SweepWindows         *command.SweepWindowsCommand
	RegisterFlow         *command.RegisterFlowCommand
	UpsertTemplateStatus *command.UpsertTemplateStatusCommand
	SaveCredentials      *command.SaveCredentialsCommand
	SweepStaleSessions   *command.SweepStaleSessionsCommand
}

type Queries struct {
	GetConversationState *query.GetConversationStateQuery
	GetWindowStatus      *query.GetWindowStatusQuery
	ListTurnEvents       *query.ListTurnEventsQuery
	GetTemplate          *query.GetTemplateQuery
	GetFlow              *query.GetFlowQuery
	GetMainFlow          *query.GetMainFlowQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	templateReader query.TemplateReader
}

// WithTemplateReader overrides the template read model the facade wires into
// the template query. Without it the reader resolves from the service.
func WithTemplateReader(reader query.TemplateReader) FacadeOption {
	return func(options *facadeOptions) {
		options.templateReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("chatflow: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.templateReader
	if reader == nil {
		reader = resolveTemplateReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ProcessInbound:       command.NewProcessInboundCommand(service),
		SendText:             command.NewSendTextCommand(service),
		SendInteractive:      command.NewSendInteractiveCommand(service),
		SendTemplate:         command.NewSendTemplateCommand(service),
		ExtendWindow:         command.NewExtendWindowCommand(service),
		SweepWindows:         command.NewSweepWindowsCommand(service),
		RegisterFlow:         command.NewRegisterFlowCommand(service),
		UpsertTemplateStatus: command.NewUpsertTemplateStatusCommand(service),
		SaveCredentials:      command.NewSaveCredentialsCommand(service),
		SweepStaleSessions:   command.NewSweepStaleSessionsCommand(service),
	}
	facade.queries = Queries{
		GetConversationState: query.NewGetConversationStateQuery(service),
		GetWindowStatus:      query.NewGetWindowStatusQuery(service),
		ListTurnEvents:       query.NewListTurnEventsQuery(service),
		GetTemplate:          query.NewGetTemplateQuery(reader),
		GetFlow:              query.NewGetFlowQuery(service),
		GetMainFlow:          query.NewGetMainFlowQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveTemplateReader finds a template read model on the service itself or
// through its exposed dependencies. Template queries stay nil-guarded when
// neither is available.
func resolveTemplateReader(service CommandQueryService) query.TemplateReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(query.TemplateReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() Dependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.TemplateStore == nil {
		return nil
	}
	return deps.TemplateStore
}

var _ CommandQueryService = (*Service)(nil)
