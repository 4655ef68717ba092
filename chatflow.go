package chatflow

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/dispatch"
	"github.com/goliatone/go-chatflow/flow"
	"github.com/goliatone/go-chatflow/ratelimit"
	"github.com/goliatone/go-chatflow/security"
	sqlstore "github.com/goliatone/go-chatflow/store/sql"
	"github.com/goliatone/go-chatflow/transport"
	"github.com/goliatone/go-chatflow/webhooks"
	"github.com/goliatone/go-chatflow/window"
)

type Config = core.Config

type Option = core.Option

var (
	WithLogger                 = core.WithLogger
	WithLoggerProvider         = core.WithLoggerProvider
	WithErrorFactory           = core.WithErrorFactory
	WithErrorMapper            = core.WithErrorMapper
	WithSecretProvider         = core.WithSecretProvider
	WithPersistenceClient      = core.WithPersistenceClient
	WithConfigProvider         = core.WithConfigProvider
	WithOptionsResolver        = core.WithOptionsResolver
	WithFlowStore              = core.WithFlowStore
	WithConversationStateStore = core.WithConversationStateStore
	WithWindowStore            = core.WithWindowStore
	WithTemplateStore          = core.WithTemplateStore
	WithCredentialResolver     = core.WithCredentialResolver
	WithEventSink              = core.WithEventSink
	WithAlerter                = core.WithAlerter
	WithSendClient             = core.WithSendClient
	WithJobEnqueuer            = core.WithJobEnqueuer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// FlowWriter persists authored flow definitions together with their nodes.
type FlowWriter interface {
	SaveFlow(ctx context.Context, flow core.Flow, nodes []core.Node) (core.Flow, error)
}

// CredentialSaver seals and stores per-tenant provider credentials.
type CredentialSaver interface {
	Save(ctx context.Context, creds core.TenantCredentials) error
}

// TranscriptSource reads back recorded conversation turns, oldest first.
type TranscriptSource interface {
	ListTurns(ctx context.Context, tenantID string, contactID string, limit int) ([]core.TurnEvent, error)
}

// Service is the composed runtime: webhook ingestion, conversation routing,
// window tracking, and rate-limited outbound dispatch behind one surface.
// Stores resolve from the persistence client when one is configured and fall
// back to in-process implementations otherwise.
type Service struct {
	config         core.Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	errorFactory   core.ErrorFactory
	errorMapper    core.ErrorMapper

	persistenceClient any
	repositories      *sqlstore.RepositoryFactory

	flowStore       core.FlowStore
	flowWriter      FlowWriter
	stateStore      core.ConversationStateStore
	windowStore     core.WindowStore
	templateStore   core.TemplateStore
	credentials     core.CredentialResolver
	credentialSaver CredentialSaver
	events          core.EventSink
	transcript      TranscriptSource
	alerter         core.Alerter
	rateStore       ratelimit.StateStore
	ledger          webhooks.DeliveryLedger
	enqueuer        core.JobEnqueuer

	router     *flow.Router
	tracker    *window.Tracker
	limiter    *ratelimit.SlidingWindowPolicy
	dispatcher *dispatch.Dispatcher
	verifier   *webhooks.SignatureVerifier
	processor  *webhooks.Processor
}

// Dependencies exposes the resolved collaborators for downstream composition.
type Dependencies struct {
	Logger             core.Logger
	LoggerProvider     core.LoggerProvider
	ErrorFactory       core.ErrorFactory
	ErrorMapper        core.ErrorMapper
	PersistenceClient  any
	RepositoryFactory  *sqlstore.RepositoryFactory
	FlowStore          core.FlowStore
	StateStore         core.ConversationStateStore
	WindowStore        core.WindowStore
	TemplateStore      core.TemplateStore
	CredentialResolver core.CredentialResolver
	EventSink          core.EventSink
	Transcript         TranscriptSource
	Alerter            core.Alerter
	JobEnqueuer        core.JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := core.NewBuilder(cfg, opts...)

	provider, logger := glog.Resolve("chatflow", builder.LoggerProvider, builder.Logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("chatflow"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.ErrorFactory == nil {
		builder.ErrorFactory = goerrors.New
	}
	if builder.ErrorMapper == nil {
		builder.ErrorMapper = core.MapError
	}
	if builder.ConfigProvider == nil {
		builder.ConfigProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.OptionsResolver == nil {
		builder.OptionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.ConfigProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.ErrorMapper, err)
	}
	finalConfig, err := builder.OptionsResolver.Resolve(defaults, loaded, builder.RuntimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.ErrorMapper, err)
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		errorFactory:      builder.ErrorFactory,
		errorMapper:       builder.ErrorMapper,
		persistenceClient: builder.PersistenceClient,
		alerter:           builder.Alerter,
		enqueuer:          builder.JobEnqueuer,
	}
	if err := service.resolveStores(builder); err != nil {
		return nil, mapBuildError(builder.ErrorMapper, err)
	}
	service.wireComponents(builder)
	return service, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (s *Service) resolveStores(builder core.Builder) error {
	if builder.PersistenceClient != nil {
		factory := sqlstore.NewRepositoryFactory()
		if err := factory.BuildStores(builder.PersistenceClient); err != nil {
			return err
		}
		s.repositories = factory
	}

	if s.repositories != nil {
		flowStore := s.repositories.FlowStore()
		s.flowStore = flowStore
		s.flowWriter = flowStore
		s.stateStore = s.repositories.ConversationStateStore()
		s.windowStore = s.repositories.WindowStore()
		s.templateStore = s.repositories.TemplateStore()
		turns := s.repositories.TurnEventStore()
		s.events = turns
		s.transcript = turns
		s.rateStore = s.repositories.RateLimitStateStore()
		s.ledger = s.repositories.DeliveryLedger()
		if builder.SecretProvider != nil {
			resolver := security.NewEncryptedCredentialResolver(builder.SecretProvider, s.repositories.CredentialRecordStore())
			s.credentials = resolver
			s.credentialSaver = resolver
		}
	} else {
		memoryFlows := flow.NewMemoryFlowStore()
		s.flowStore = memoryFlows
		s.flowWriter = memoryFlowWriter{store: memoryFlows}
		s.stateStore = flow.NewMemoryStateStore()
		s.windowStore = window.NewMemoryStore()
		s.templateStore = NewMemoryTemplateStore()
		transcript := NewMemoryTranscript()
		s.events = transcript
		s.transcript = transcript
		s.rateStore = ratelimit.NewMemoryStateStore()
		s.ledger = webhooks.NewMemoryDeliveryLedger()
		if builder.SecretProvider != nil {
			resolver := security.NewEncryptedCredentialResolver(builder.SecretProvider, security.NewMemoryCredentialRecordStore())
			s.credentials = resolver
			s.credentialSaver = resolver
		}
	}

	// explicit builder stores always win over resolved ones
	if builder.FlowStore != nil {
		s.flowStore = builder.FlowStore
		if writer, ok := builder.FlowStore.(FlowWriter); ok {
			s.flowWriter = writer
		}
	}
	if builder.StateStore != nil {
		s.stateStore = builder.StateStore
	}
	if builder.WindowStore != nil {
		s.windowStore = builder.WindowStore
	}
	if builder.TemplateStore != nil {
		s.templateStore = builder.TemplateStore
	}
	if builder.EventSink != nil {
		s.events = builder.EventSink
		if source, ok := builder.EventSink.(TranscriptSource); ok {
			s.transcript = source
		}
	}
	if builder.CredentialResolver != nil {
		s.credentials = builder.CredentialResolver
		if saver, ok := builder.CredentialResolver.(CredentialSaver); ok {
			s.credentialSaver = saver
		}
	}
	return nil
}

func (s *Service) wireComponents(builder core.Builder) {
	s.limiter = ratelimit.NewSlidingWindowPolicy(s.rateStore, s.config.RateLimit.Budget, s.config.RateLimit.Interval())
	s.tracker = window.NewTracker(window.TrackerConfig{
		Store:  s.windowStore,
		Logger: s.logger,
		Hours:  s.config.Window.Hours,
	})
	s.router = flow.NewRouter(flow.RouterConfig{
		FlowStore:           s.flowStore,
		StateStore:          s.stateStore,
		EventSink:           s.events,
		Logger:              s.logger,
		MaxHops:             s.config.Router.MaxHops,
		MaxQuestionAttempts: s.config.Router.MaxQuestionAttempts,
	})

	sendClient := builder.SendClient
	if sendClient == nil {
		sendClient = transport.NewGraphSendClient(nil)
	}
	s.dispatcher = dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Client:         sendClient,
		Credentials:    s.credentials,
		Window:         s.tracker,
		RateLimiter:    s.limiter,
		Templates:      s.templateStore,
		Logger:         s.logger,
		MaxAttempts:    s.config.Dispatch.MaxAttempts,
		InitialBackoff: s.config.Dispatch.InitialBackoff(),
		MaxBackoff:     s.config.Dispatch.MaxBackoff(),
	})

	s.verifier = webhooks.NewSignatureVerifier(s.credentials, s.config.Webhook.FallbackSecret, s.logger)
	s.processor = webhooks.NewProcessor(webhooks.ProcessorConfig{
		Verifier: s.verifier,
		Ledger:   s.ledger,
		Handler: webhooks.MessageHandlerFunc(func(ctx context.Context, msg core.InboundMessage) error {
			_, err := s.HandleInbound(ctx, msg)
			return err
		}),
		Window:        s.tracker,
		StatusTracker: statusTracker{logger: s.logger, alerter: s.alerter},
		Templates:     s.templateStore,
		Logger:        s.logger,
	})
}

func mapBuildError(mapper core.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() Dependencies {
	if s == nil {
		return Dependencies{}
	}
	return Dependencies{
		Logger:             s.logger,
		LoggerProvider:     s.loggerProvider,
		ErrorFactory:       s.errorFactory,
		ErrorMapper:        s.errorMapper,
		PersistenceClient:  s.persistenceClient,
		RepositoryFactory:  s.repositories,
		FlowStore:          s.flowStore,
		StateStore:         s.stateStore,
		WindowStore:        s.windowStore,
		TemplateStore:      s.templateStore,
		CredentialResolver: s.credentials,
		EventSink:          s.events,
		Transcript:         s.transcript,
		Alerter:            s.alerter,
		JobEnqueuer:        s.enqueuer,
	}
}

func (s *Service) Router() *flow.Router {
	if s == nil {
		return nil
	}
	return s.router
}

func (s *Service) Tracker() *window.Tracker {
	if s == nil {
		return nil
	}
	return s.tracker
}

func (s *Service) Dispatcher() *dispatch.Dispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

func (s *Service) Processor() *webhooks.Processor {
	if s == nil {
		return nil
	}
	return s.processor
}

// HTTPHandler returns the ready-to-mount webhook endpoint: GET handles the
// subscription handshake, POST ingests deliveries.
func (s *Service) HTTPHandler() *webhooks.HTTPHandler {
	if s == nil {
		return nil
	}
	return webhooks.NewHTTPHandler(s.processor, s.config.Webhook.VerifyToken, s.logger)
}

// ProcessWebhook verifies, deduplicates, and fans out one raw delivery.
func (s *Service) ProcessWebhook(ctx context.Context, req webhooks.Request) (webhooks.Result, error) {
	if s == nil || s.processor == nil {
		return webhooks.Result{}, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.processor.Process(ctx, req)
}

// HandleInbound routes one contact message through the conversation graph and
// dispatches the resulting replies. Reply delivery failures are logged and
// alerted but never fail the inbound handling: the state has already moved.
func (s *Service) HandleInbound(ctx context.Context, msg core.InboundMessage) (flow.Result, error) {
	if s == nil || s.router == nil {
		return flow.Result{}, fmt.Errorf("chatflow: service is not initialized")
	}
	result, err := s.router.HandleInbound(ctx, msg)
	if err != nil {
		return flow.Result{}, s.mapError(err)
	}
	s.deliverReplies(ctx, msg.TenantID, msg.ContactID, result.Replies)
	return result, nil
}

func (s *Service) deliverReplies(ctx context.Context, tenantID, contactID string, replies []flow.Reply) {
	for _, reply := range replies {
		var err error
		if len(reply.Buttons) > 0 {
			_, err = s.dispatcher.SendInteractive(ctx, tenantID, contactID, core.InteractiveSend{
				Body:    reply.Text,
				Buttons: reply.Buttons,
			})
		} else {
			_, err = s.dispatcher.SendText(ctx, tenantID, contactID, reply.Text)
		}
		if err == nil {
			continue
		}
		s.logger.Error("reply dispatch failed",
			"tenant_id", tenantID,
			"contact_id", contactID,
			"error", err,
		)
		if s.alerter != nil {
			_ = s.alerter.Alert(ctx, core.AlertEvent{
				TenantID: tenantID,
				Kind:     "reply_dispatch_failed",
				Message:  err.Error(),
				Metadata: map[string]any{"contact_id": contactID},
			})
		}
	}
}

func (s *Service) SendText(ctx context.Context, tenantID, contactID, text string) (core.DispatchResult, error) {
	if s == nil || s.dispatcher == nil {
		return core.DispatchResult{}, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.dispatcher.SendText(ctx, tenantID, contactID, text)
}

func (s *Service) SendInteractive(ctx context.Context, tenantID, contactID string, message core.InteractiveSend) (core.DispatchResult, error) {
	if s == nil || s.dispatcher == nil {
		return core.DispatchResult{}, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.dispatcher.SendInteractive(ctx, tenantID, contactID, message)
}

func (s *Service) SendTemplate(ctx context.Context, tenantID, contactID string, template core.TemplateSend) (core.DispatchResult, error) {
	if s == nil || s.dispatcher == nil {
		return core.DispatchResult{}, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.dispatcher.SendTemplate(ctx, tenantID, contactID, template)
}

func (s *Service) Extend(ctx context.Context, tenantID, contactID string, hours int) (core.ConversationWindow, error) {
	if s == nil || s.tracker == nil {
		return core.ConversationWindow{}, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.tracker.Extend(ctx, tenantID, contactID, hours)
}

func (s *Service) Sweep(ctx context.Context, tenantID string) (int64, error) {
	if s == nil || s.tracker == nil {
		return 0, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.tracker.Sweep(ctx, tenantID)
}

func (s *Service) SaveFlow(ctx context.Context, definition core.Flow, nodes []core.Node) (core.Flow, error) {
	if s == nil || s.flowWriter == nil {
		return core.Flow{}, s.mapError(fmt.Errorf("chatflow: flow writer is not configured"))
	}
	saved, err := s.flowWriter.SaveFlow(ctx, definition, nodes)
	if err != nil {
		return core.Flow{}, s.mapError(err)
	}
	return saved, nil
}

func (s *Service) UpsertTemplateStatus(ctx context.Context, tenantID, name, language string, status core.TemplateStatus) (core.Template, error) {
	if s == nil || s.templateStore == nil {
		return core.Template{}, s.mapError(fmt.Errorf("chatflow: template store is not configured"))
	}
	template, err := s.templateStore.UpsertStatus(ctx, tenantID, name, language, status)
	if err != nil {
		return core.Template{}, s.mapError(err)
	}
	return template, nil
}

func (s *Service) SaveCredentials(ctx context.Context, creds core.TenantCredentials) error {
	if s == nil || s.credentialSaver == nil {
		return s.mapError(fmt.Errorf("chatflow: credential saver is not configured, a secret provider is required"))
	}
	return s.credentialSaver.Save(ctx, creds)
}

func (s *Service) DeactivateStale(ctx context.Context, tenantID string, inactiveSince time.Time) (int64, error) {
	if s == nil || s.stateStore == nil {
		return 0, fmt.Errorf("chatflow: service is not initialized")
	}
	count, err := s.stateStore.DeactivateStale(ctx, tenantID, inactiveSince)
	if err != nil {
		return 0, s.mapError(err)
	}
	if count > 0 {
		s.logger.Info("stale sessions deactivated",
			"tenant_id", tenantID,
			"count", count,
		)
	}
	return count, nil
}

func (s *Service) GetActive(ctx context.Context, tenantID, contactID string) (core.ConversationState, error) {
	if s == nil || s.stateStore == nil {
		return core.ConversationState{}, fmt.Errorf("chatflow: service is not initialized")
	}
	state, err := s.stateStore.GetActive(ctx, tenantID, contactID)
	if err != nil {
		return core.ConversationState{}, s.mapError(err)
	}
	return state, nil
}

func (s *Service) Status(ctx context.Context, tenantID, contactID string) (core.WindowStatus, error) {
	if s == nil || s.tracker == nil {
		return core.WindowStatusUnknown, fmt.Errorf("chatflow: service is not initialized")
	}
	return s.tracker.Status(ctx, tenantID, contactID)
}

func (s *Service) ListTurns(ctx context.Context, tenantID, contactID string, limit int) ([]core.TurnEvent, error) {
	if s == nil || s.transcript == nil {
		return nil, s.mapError(fmt.Errorf("chatflow: transcript source is not configured"))
	}
	turns, err := s.transcript.ListTurns(ctx, tenantID, contactID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return turns, nil
}

func (s *Service) GetFlow(ctx context.Context, tenantID, flowID string) (core.Flow, error) {
	if s == nil || s.flowStore == nil {
		return core.Flow{}, fmt.Errorf("chatflow: service is not initialized")
	}
	definition, err := s.flowStore.GetFlow(ctx, tenantID, flowID)
	if err != nil {
		return core.Flow{}, s.mapError(err)
	}
	return definition, nil
}

func (s *Service) GetMainFlow(ctx context.Context, tenantID string) (core.Flow, error) {
	if s == nil || s.flowStore == nil {
		return core.Flow{}, fmt.Errorf("chatflow: service is not initialized")
	}
	definition, err := s.flowStore.GetMainFlow(ctx, tenantID)
	if err != nil {
		return core.Flow{}, s.mapError(err)
	}
	return definition, nil
}

// statusTracker logs provider delivery-status callbacks and alerts on
// terminal failures. Persistent status history is out of scope here.
type statusTracker struct {
	logger  core.Logger
	alerter core.Alerter
}

var _ core.StatusTracker = statusTracker{}

func (t statusTracker) TrackStatus(ctx context.Context, update core.StatusUpdate) error {
	if t.logger != nil {
		t.logger.Info("delivery status received",
			"tenant_id", update.TenantID,
			"message_id", update.MessageID,
			"status", update.Status,
		)
	}
	if update.Status == "failed" && t.alerter != nil {
		_ = t.alerter.Alert(ctx, core.AlertEvent{
			TenantID: update.TenantID,
			Kind:     "message_delivery_failed",
			Message:  "provider reported a failed delivery",
			Metadata: map[string]any{"message_id": update.MessageID},
		})
	}
	return nil
}
