package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	chatflow "github.com/goliatone/go-chatflow"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so the sweep and dispatch jobs can execute them off the queue.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// FacadeSubscriptions bundles every dispatcher subscription made for a
// facade so callers can tear the whole set down at once.
type FacadeSubscriptions struct {
	subscriptions []commanddispatcher.Subscription
}

func (s *FacadeSubscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, subscription := range s.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

// SubscribeFacade registers and subscribes every command and query handler
// the facade wired, making the whole surface dispatchable.
func SubscribeFacade(
	adapter *RegistryAdapter,
	facade *chatflow.Facade,
	runnerOpts ...runner.Option,
) (*FacadeSubscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}

	commands := facade.Commands()
	queries := facade.Queries()
	bundle := &FacadeSubscriptions{}

	subscribe := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			bundle.Unsubscribe()
			return err
		}
		bundle.subscriptions = append(bundle.subscriptions, subscription)
		return nil
	}

	if err := subscribe(RegisterAndSubscribe(adapter, commands.ProcessInbound, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.SendText, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.SendInteractive, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.SendTemplate, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.ExtendWindow, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.SweepWindows, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.RegisterFlow, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.UpsertTemplateStatus, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.SaveCredentials, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribe(adapter, commands.SweepStaleSessions, runnerOpts...)); err != nil {
		return nil, err
	}

	if err := subscribe(RegisterAndSubscribeQuery(adapter, queries.GetConversationState, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribeQuery(adapter, queries.GetWindowStatus, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribeQuery(adapter, queries.ListTurnEvents, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribeQuery(adapter, queries.GetTemplate, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribeQuery(adapter, queries.GetFlow, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := subscribe(RegisterAndSubscribeQuery(adapter, queries.GetMainFlow, runnerOpts...)); err != nil {
		return nil, err
	}

	return bundle, nil
}
