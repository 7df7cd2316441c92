package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-credentials/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-credentials::credential::v1"

// CachedCredentialStore serves Load from a read-through cache and evicts the
// entry after every successful Save. A Load that overlaps a Save evicts what
// it cached and reads the row again, so a pre-save row never outlives the
// save in the cache.
type CachedCredentialStore struct {
	base        core.CredentialStore
	cache       repositorycache.CacheService
	generations sync.Map
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns go-credentials::credential::v1::<account_id>
// with the account id URL-path escaped.
func CredentialCacheKey(accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("sqlstore: account id is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(accountID), nil
}

func (s *CachedCredentialStore) Load(ctx context.Context, accountID string) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(accountID)
	if err != nil {
		return core.Credential{}, err
	}
	accountID = strings.TrimSpace(accountID)
	generation := s.generation(accountID)
	started := generation.Load()
	credential, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Credential, error) {
		fetched, fetchErr := s.base.Load(ctx, accountID)
		if fetchErr != nil {
			return core.Credential{}, fetchErr
		}
		return cloneCredential(fetched), nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	if generation.Load() != started {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.Credential{}, err
		}
		return s.base.Load(ctx, accountID)
	}
	return cloneCredential(credential), nil
}

func (s *CachedCredentialStore) Save(ctx context.Context, accountID string, update core.CredentialUpdate) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Save(ctx, accountID, update); err != nil {
		return err
	}
	s.generation(strings.TrimSpace(accountID)).Add(1)
	return s.Invalidate(ctx, accountID)
}

// generation counts successful saves per account.
func (s *CachedCredentialStore) generation(accountID string) *atomic.Uint64 {
	if existing, ok := s.generations.Load(accountID); ok {
		return existing.(*atomic.Uint64)
	}
	created, _ := s.generations.LoadOrStore(accountID, &atomic.Uint64{})
	return created.(*atomic.Uint64)
}

func (s *CachedCredentialStore) Invalidate(ctx context.Context, accountID string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(accountID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneCredential(credential core.Credential) core.Credential {
	cloned := credential
	cloned.RefreshToken = cloneStringPointer(credential.RefreshToken)
	cloned.ExpiresAt = cloneTimePointer(credential.ExpiresAt)
	return cloned
}
