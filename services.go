package credentials

import "github.com/goliatone/go-credentials/core"

type Config = core.Config

type RefreshConfig = core.RefreshConfig

type ProviderConfig = core.ProviderConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type ProviderKind = core.ProviderKind

type Credential = core.Credential

type CredentialUpdate = core.CredentialUpdate

type RefreshResult = core.RefreshResult

type TokenOutcome = core.TokenOutcome

type RefreshError = core.RefreshError

type LinkedAccount = core.LinkedAccount

type LinkAccountInput = core.LinkAccountInput

type RefreshStrategy = core.RefreshStrategy

type CredentialStore = core.CredentialStore

type AccountStore = core.AccountStore

type TokenSealer = core.TokenSealer

const (
	ProviderTikTok    = core.ProviderTikTok
	ProviderTwitter   = core.ProviderTwitter
	ProviderGoogle    = core.ProviderGoogle
	ProviderFacebook  = core.ProviderFacebook
	ProviderInstagram = core.ProviderInstagram
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithClock             = core.WithClock
	WithStrategyRegistry  = core.WithStrategyRegistry
	WithStrategies        = core.WithStrategies
	WithStrategyFactory   = core.WithStrategyFactory
	WithCredentialStore   = core.WithCredentialStore
	WithAccountStore      = core.WithAccountStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds the service with the provider strategies derived from
// cfg. A WithStrategyFactory option replaces them.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, withDefaultStrategies(opts)...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, withDefaultStrategies(opts)...)
}

func withDefaultStrategies(opts []Option) []Option {
	out := make([]Option, 0, len(opts)+1)
	out = append(out, core.WithStrategyFactory(ProviderStrategies(nil)))
	return append(out, opts...)
}
