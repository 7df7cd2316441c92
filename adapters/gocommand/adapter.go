package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	credentialcommand "github.com/goliatone/go-credentials/command"
	"github.com/goliatone/go-credentials/core"
	credentialquery "github.com/goliatone/go-credentials/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// CredentialService is the service surface the registered handlers need.
type CredentialService interface {
	credentialcommand.TokenService
	credentialcommand.AccountService
	credentialquery.AccessTokenReader
	credentialquery.LinkedAccountReader
}

// ValidateMessageContract enforces Type() plus the optional Validate().
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

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so EnsureFresh can also be run from a queue.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Subscriptions collects dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterCredentialHandlers subscribes every credential command and query
// on the global dispatcher and registers the commands on the adapter's
// registry.
func RegisterCredentialHandlers(
	adapter *RegistryAdapter,
	service CredentialService,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: credential service is required")
	}

	subscriptions := Subscriptions{}
	fail := func(err error) (Subscriptions, error) {
		subscriptions.Unsubscribe()
		return nil, err
	}

	commands := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, credentialcommand.NewEnsureFreshCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, credentialcommand.NewLinkAccountCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, credentialcommand.NewUnlinkAccountCommand(service), runnerOpts...)
		},
	}
	for _, register := range commands {
		subscription, err := register()
		if err != nil {
			return fail(err)
		}
		subscriptions = append(subscriptions, subscription)
	}

	subscriptions = append(subscriptions,
		commanddispatcher.SubscribeQuery[credentialquery.GetValidAccessTokenMessage, credentialquery.AccessTokenResult](
			credentialquery.NewGetValidAccessTokenQuery(service), runnerOpts...),
		commanddispatcher.SubscribeQuery[credentialquery.ListLinkedAccountsMessage, []core.LinkedAccount](
			credentialquery.NewListLinkedAccountsQuery(service), runnerOpts...),
		commanddispatcher.SubscribeQuery[credentialquery.CanLinkAccountMessage, core.LinkEligibility](
			credentialquery.NewCanLinkAccountQuery(service), runnerOpts...),
	)
	return subscriptions, nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

// EnsureFresh dispatches an EnsureFreshMessage and returns the stored outcome.
func EnsureFresh(ctx context.Context, accountID string) (core.TokenOutcome, error) {
	collector := command.NewResult[core.TokenOutcome]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := Dispatch(ctx, credentialcommand.EnsureFreshMessage{AccountID: accountID}); err != nil {
		return core.TokenOutcome{}, err
	}
	outcome, ok := collector.Load()
	if !ok {
		return core.TokenOutcome{}, fmt.Errorf("gocommand: ensure fresh produced no outcome")
	}
	return outcome, nil
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
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
