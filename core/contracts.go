package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// CredentialStore persists the token material of linked accounts.
type CredentialStore interface {
	Load(ctx context.Context, accountID string) (Credential, error)
	Save(ctx context.Context, accountID string, update CredentialUpdate) error
}

// CredentialCacheInvalidator is implemented by stores that keep a read cache.
type CredentialCacheInvalidator interface {
	Invalidate(ctx context.Context, accountID string) error
}

type AccountStore interface {
	Create(ctx context.Context, input LinkAccountInput) (LinkedAccount, error)
	Get(ctx context.Context, accountID string) (LinkedAccount, error)
	FindByUserAndProvider(ctx context.Context, userID string, provider ProviderKind) (LinkedAccount, bool, error)
	ListByUser(ctx context.Context, userID string) ([]LinkedAccount, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// DeleteUnlessLast removes the user's account in one step, failing with
	// ErrLastLinkedAccount when it is the only one left.
	DeleteUnlessLast(ctx context.Context, userID, accountID string) error
}

// RefreshStrategy obtains a new access token from one provider. It never
// touches the store and never retries.
type RefreshStrategy interface {
	Provider() ProviderKind
	Refresh(ctx context.Context, cred Credential) (RefreshResult, error)
}

type StrategyRegistry interface {
	Register(strategy RefreshStrategy) error
	Get(provider ProviderKind) (RefreshStrategy, bool)
	List() []RefreshStrategy
}

// TokenSealer protects tokens at rest. Open must accept values that were
// never sealed.
type TokenSealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, stored string) (string, error)
}

type StoreProvider interface {
	CredentialStore() CredentialStore
	AccountStore() AccountStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TokenService is the consumer-facing surface of the refresh orchestrator.
type TokenService interface {
	GetValidAccessToken(ctx context.Context, accountID string) (string, bool, error)
	EnsureFresh(ctx context.Context, accountID string) (TokenOutcome, error)
}

type AccountService interface {
	CanLinkAccount(ctx context.Context, userID string, provider ProviderKind) (LinkEligibility, error)
	LinkAccount(ctx context.Context, input LinkAccountInput) (LinkedAccount, error)
	UnlinkAccount(ctx context.Context, userID string, accountID string) error
	ListLinkedAccounts(ctx context.Context, userID string) ([]LinkedAccount, error)
}
