package sqlstore

import "github.com/goliatone/go-credentials/core"

var (
	_ core.CredentialStore            = (*CredentialStore)(nil)
	_ core.CredentialStore            = (*CachedCredentialStore)(nil)
	_ core.CredentialCacheInvalidator = (*CachedCredentialStore)(nil)
	_ core.AccountStore               = (*AccountStore)(nil)
	_ core.StoreProvider              = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory     = (*RepositoryFactory)(nil)
)
