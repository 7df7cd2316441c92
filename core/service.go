package core

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	clock             clockwork.Clock
	policy            ExpiryPolicy
	registry          StrategyRegistry
	credentialStore   CredentialStore
	accountStore      AccountStore
	refreshGroup      singleflight.Group
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Clock             clockwork.Clock
	Registry          StrategyRegistry
	CredentialStore   CredentialStore
	AccountStore      AccountStore
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credentials", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credentials"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = clockwork.NewRealClock()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.credentialStore == nil || builder.accountStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			applyStoreProvider(&builder, stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			applyStoreProvider(&builder, stores)
		}
	}

	registry := builder.registry
	if registry == nil {
		registry = &ProviderStrategyRegistry{strategies: make(map[ProviderKind]RefreshStrategy)}
	}
	strategies := append([]RefreshStrategy(nil), builder.strategies...)
	if builder.strategyFactory != nil {
		built, buildErr := builder.strategyFactory(finalConfig, builder.clock)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		strategies = append(strategies, built...)
	}
	for _, strategy := range strategies {
		if strategy == nil {
			continue
		}
		if _, exists := registry.Get(strategy.Provider()); exists {
			continue
		}
		if regErr := registry.Register(strategy); regErr != nil {
			return nil, mapBuildError(builder.errorMapper, regErr)
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		clock:             builder.clock,
		policy:            NewExpiryPolicy(finalConfig.Refresh.StaleBuffer(), builder.clock),
		registry:          registry,
		credentialStore:   builder.credentialStore,
		accountStore:      builder.accountStore,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func applyStoreProvider(builder *serviceBuilder, stores StoreProvider) {
	if builder == nil || stores == nil {
		return
	}
	if builder.credentialStore == nil {
		builder.credentialStore = stores.CredentialStore()
	}
	if builder.accountStore == nil {
		builder.accountStore = stores.AccountStore()
	}
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) ExpiryPolicy() ExpiryPolicy {
	if s == nil {
		return NewExpiryPolicy(DefaultStaleBuffer, nil)
	}
	return s.policy
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Clock:             s.clock,
		Registry:          s.registry,
		CredentialStore:   s.credentialStore,
		AccountStore:      s.accountStore,
	}
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

func (s *Service) requireCredentialStore() error {
	if s == nil || s.credentialStore == nil {
		return fmt.Errorf("core: credential store is required")
	}
	return nil
}

func (s *Service) requireAccountStore() error {
	if s == nil || s.accountStore == nil {
		return fmt.Errorf("core: account store is required")
	}
	return nil
}
