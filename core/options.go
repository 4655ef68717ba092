package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type Builder struct {
	RuntimeConfig     Config
	Logger            Logger
	LoggerProvider    LoggerProvider
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver

	FlowStore          FlowStore
	StateStore         ConversationStateStore
	WindowStore        WindowStore
	TemplateStore      TemplateStore
	CredentialResolver CredentialResolver
	EventSink          EventSink
	Alerter            Alerter
	SendClient         SendClient
	JobEnqueuer        JobEnqueuer
}

type Option func(*Builder)

func WithLogger(logger Logger) Option {
	return func(b *Builder) {
		b.Logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *Builder) {
		b.LoggerProvider = provider
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *Builder) {
		b.ErrorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *Builder) {
		b.ErrorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *Builder) {
		b.SecretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *Builder) {
		b.PersistenceClient = client
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *Builder) {
		b.ConfigProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *Builder) {
		b.OptionsResolver = resolver
	}
}

func WithFlowStore(store FlowStore) Option {
	return func(b *Builder) {
		b.FlowStore = store
	}
}

func WithConversationStateStore(store ConversationStateStore) Option {
	return func(b *Builder) {
		b.StateStore = store
	}
}

func WithWindowStore(store WindowStore) Option {
	return func(b *Builder) {
		b.WindowStore = store
	}
}

func WithTemplateStore(store TemplateStore) Option {
	return func(b *Builder) {
		b.TemplateStore = store
	}
}

func WithCredentialResolver(resolver CredentialResolver) Option {
	return func(b *Builder) {
		b.CredentialResolver = resolver
	}
}

func WithEventSink(sink EventSink) Option {
	return func(b *Builder) {
		b.EventSink = sink
	}
}

func WithAlerter(alerter Alerter) Option {
	return func(b *Builder) {
		b.Alerter = alerter
	}
}

func WithSendClient(client SendClient) Option {
	return func(b *Builder) {
		b.SendClient = client
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *Builder) {
		b.JobEnqueuer = enqueuer
	}
}

func NewBuilder(runtime Config, options ...Option) Builder {
	builder := defaultBuilder(runtime)
	for _, opt := range options {
		if opt != nil {
			opt(&builder)
		}
	}
	return builder
}

func defaultBuilder(runtime Config) Builder {
	loggerProvider, logger := glog.Resolve("chatflow", nil, nil)
	return Builder{
		RuntimeConfig:   runtime,
		LoggerProvider:  loggerProvider,
		Logger:          logger,
		ErrorFactory:    goerrors.New,
		ErrorMapper:     defaultErrorMapper,
		ConfigProvider:  NewCfgxConfigProvider(nil),
		OptionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.VerifyToken) != "" || strings.TrimSpace(cfg.Webhook.FallbackSecret) != "" {
		layer["webhook"] = map[string]any{
			"verify_token":    cfg.Webhook.VerifyToken,
			"fallback_secret": cfg.Webhook.FallbackSecret,
		}
	}
	if includeZero || cfg.Window.Hours != 0 {
		layer["window"] = map[string]any{
			"hours": cfg.Window.Hours,
		}
	}
	if includeZero || cfg.Router.MaxHops != 0 || cfg.Router.MaxQuestionAttempts != 0 {
		layer["router"] = map[string]any{
			"max_hops":              cfg.Router.MaxHops,
			"max_question_attempts": cfg.Router.MaxQuestionAttempts,
		}
	}
	if includeZero || cfg.RateLimit.Budget != 0 || cfg.RateLimit.IntervalSeconds != 0 {
		layer["rate_limit"] = map[string]any{
			"budget":           cfg.RateLimit.Budget,
			"interval_seconds": cfg.RateLimit.IntervalSeconds,
		}
	}
	if includeZero || cfg.Dispatch.MaxAttempts != 0 {
		layer["dispatch"] = map[string]any{
			"max_attempts":       cfg.Dispatch.MaxAttempts,
			"initial_backoff_ms": cfg.Dispatch.InitialBackoffMS,
			"max_backoff_ms":     cfg.Dispatch.MaxBackoffMS,
			"send_timeout_ms":    cfg.Dispatch.SendTimeoutMS,
		}
	}
	if includeZero || cfg.Sweep.IntervalSeconds != 0 || cfg.Sweep.StaleSessionHours != 0 {
		layer["sweep"] = map[string]any{
			"interval_seconds":    cfg.Sweep.IntervalSeconds,
			"stale_session_hours": cfg.Sweep.StaleSessionHours,
		}
	}
	return layer
}
