package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-credentials/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

type FactoryOption func(*RepositoryFactory)

// WithTokenSealer seals tokens on write and opens them on read.
func WithTokenSealer(sealer core.TokenSealer) FactoryOption {
	return func(f *RepositoryFactory) {
		f.sealer = sealer
	}
}

// WithCacheService puts a read-through cache in front of the credential store.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func WithClock(clock clockwork.Clock) FactoryOption {
	return func(f *RepositoryFactory) {
		if clock != nil {
			f.clock = clock
		}
	}
}

type RepositoryFactory struct {
	db     *bun.DB
	sealer core.TokenSealer
	cache  repositorycache.CacheService
	clock  clockwork.Clock

	credentialStore       *CredentialStore
	cachedCredentialStore *CachedCredentialStore
	accountStore          *AccountStore
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.accountStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// CredentialStore returns the cached store when a cache service is configured.
func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	if f.cachedCredentialStore != nil {
		return f.cachedCredentialStore
	}
	if f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) AccountStore() core.AccountStore {
	if f == nil || f.accountStore == nil {
		return nil
	}
	return f.accountStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	repo := repository.NewRepository[*linkedAccountRecord](f.db, linkedAccountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid linked account repository wiring: %w", err)
		}
	}

	f.credentialStore = &CredentialStore{
		db:     f.db,
		repo:   repo,
		sealer: f.sealer,
		clock:  f.clock,
	}
	f.accountStore = &AccountStore{
		db:          f.db,
		repo:        repo,
		credentials: f.credentialStore,
	}
	if f.cache != nil {
		cached, err := NewCachedCredentialStore(f.credentialStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedCredentialStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
