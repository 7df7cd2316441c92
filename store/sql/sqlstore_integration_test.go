package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/core"
	credentialmigrations "github.com/goliatone/go-credentials/migrations"
	"github.com/goliatone/go-credentials/security"
	sqlstore "github.com/goliatone/go-credentials/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-credentials-tests"
}

func TestCredentialStore_LoadAndPartialSave(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithClock(clock))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	expiresAt := testNow.Add(time.Hour)
	account, err := factory.AccountStore().Create(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderTikTok,
		ProviderAccountID: "tt-100",
		AccessToken:       "act.initial",
		RefreshToken:      core.StringPtr("rft.initial"),
		ExpiresAt:         &expiresAt,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	store := factory.CredentialStore()
	cred, err := store.Load(ctx, account.ID)
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.Provider != core.ProviderTikTok || cred.AccessToken != "act.initial" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.RefreshToken == nil || *cred.RefreshToken != "rft.initial" {
		t.Fatalf("expected stored refresh token, got %v", cred.RefreshToken)
	}
	if cred.ExpiresAt == nil || !cred.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expires_at %s, got %v", expiresAt, cred.ExpiresAt)
	}

	clock.Advance(time.Minute)
	if err := store.Save(ctx, account.ID, core.CredentialUpdate{AccessToken: "act.rotated"}); err != nil {
		t.Fatalf("save access token only: %v", err)
	}
	cred, err = store.Load(ctx, account.ID)
	if err != nil {
		t.Fatalf("reload credential: %v", err)
	}
	if cred.AccessToken != "act.rotated" {
		t.Fatalf("expected rotated access token, got %q", cred.AccessToken)
	}
	if cred.RefreshToken == nil || *cred.RefreshToken != "rft.initial" {
		t.Fatalf("expected refresh token to be kept on partial save")
	}
	if cred.ExpiresAt == nil || !cred.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expires_at to be kept on partial save")
	}
	if !cred.UpdatedAt.Equal(testNow.Add(time.Minute)) {
		t.Fatalf("expected updated_at to follow the clock, got %s", cred.UpdatedAt)
	}

	nextExpiry := testNow.Add(24 * time.Hour)
	if err := store.Save(ctx, account.ID, core.CredentialUpdate{
		AccessToken:  "act.third",
		RefreshToken: core.StringPtr("rft.second"),
		ExpiresAt:    &nextExpiry,
	}); err != nil {
		t.Fatalf("save full update: %v", err)
	}
	cred, err = store.Load(ctx, account.ID)
	if err != nil {
		t.Fatalf("reload credential: %v", err)
	}
	if *cred.RefreshToken != "rft.second" || !cred.ExpiresAt.Equal(nextExpiry) {
		t.Fatalf("expected full update to be stored, got %+v", cred)
	}
}

func TestCredentialStore_NotFound(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CredentialStore()
	if _, err := store.Load(ctx, "missing"); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found on load, got %v", err)
	}
	if err := store.Save(ctx, "missing", core.CredentialUpdate{AccessToken: "act"}); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found on save, got %v", err)
	}
	if err := store.Save(ctx, "missing", core.CredentialUpdate{AccessToken: "  "}); err == nil {
		t.Fatalf("expected blank access token to be rejected")
	}
}

func TestCredentialStore_SealsTokensAtRest(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	sealer, err := security.NewAppKeySealerFromString("integration-app-key")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithTokenSealer(sealer))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	account, err := factory.AccountStore().Create(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "g-1",
		AccessToken:       "ya29.plain",
		RefreshToken:      core.StringPtr("1//refresh"),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	var rawAccess string
	var rawRefresh sql.NullString
	if err := client.DB().NewRaw(
		"SELECT access_token, refresh_token FROM linked_accounts WHERE id = ?",
		account.ID,
	).Scan(ctx, &rawAccess, &rawRefresh); err != nil {
		t.Fatalf("query raw tokens: %v", err)
	}
	if !security.IsSealed(rawAccess) || strings.Contains(rawAccess, "ya29.plain") {
		t.Fatalf("expected sealed access token at rest, got %q", rawAccess)
	}
	if !rawRefresh.Valid || !security.IsSealed(rawRefresh.String) {
		t.Fatalf("expected sealed refresh token at rest, got %+v", rawRefresh)
	}

	cred, err := factory.CredentialStore().Load(ctx, account.ID)
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.AccessToken != "ya29.plain" || cred.RefreshToken == nil || *cred.RefreshToken != "1//refresh" {
		t.Fatalf("expected opened tokens, got %+v", cred)
	}

	if _, err := client.DB().NewRaw(
		"UPDATE linked_accounts SET access_token = ? WHERE id = ?",
		"legacy-plain", account.ID,
	).Exec(ctx); err != nil {
		t.Fatalf("write legacy token: %v", err)
	}
	cred, err = factory.CredentialStore().Load(ctx, account.ID)
	if err != nil {
		t.Fatalf("load legacy credential: %v", err)
	}
	if cred.AccessToken != "legacy-plain" {
		t.Fatalf("expected unsealed legacy token to pass through, got %q", cred.AccessToken)
	}
}

func TestAccountStore_Lifecycle(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithClock(clock))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	accounts := factory.AccountStore()

	first, err := accounts.Create(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderFacebook,
		ProviderAccountID: "fb-1",
		AccessToken:       "EAAB",
		Profile:           map[string]any{"name": "Creator"},
	})
	if err != nil {
		t.Fatalf("create facebook account: %v", err)
	}
	if first.Profile["name"] != "Creator" {
		t.Fatalf("expected profile to round trip, got %+v", first.Profile)
	}

	clock.Advance(time.Second)
	second, err := accounts.Create(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderInstagram,
		ProviderAccountID: "ig-1",
		AccessToken:       "IGQV",
	})
	if err != nil {
		t.Fatalf("create instagram account: %v", err)
	}

	_, err = accounts.Create(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderFacebook,
		ProviderAccountID: "fb-2",
		AccessToken:       "EAAC",
	})
	if !errors.Is(err, core.ErrAccountAlreadyLinked) {
		t.Fatalf("expected duplicate provider to be rejected, got %v", err)
	}

	found, ok, err := accounts.FindByUserAndProvider(ctx, "user-1", core.ProviderInstagram)
	if err != nil || !ok || found.ID != second.ID {
		t.Fatalf("expected to find instagram account, got %+v ok=%t err=%v", found, ok, err)
	}
	if _, ok, err := accounts.FindByUserAndProvider(ctx, "user-1", core.ProviderTwitter); err != nil || ok {
		t.Fatalf("expected no twitter account, got ok=%t err=%v", ok, err)
	}

	listed, err := accounts.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != first.ID || listed[1].ID != second.ID {
		t.Fatalf("expected accounts oldest first, got %+v", listed)
	}
	count, err := accounts.CountByUser(ctx, "user-1")
	if err != nil || count != 2 {
		t.Fatalf("expected count 2, got %d err=%v", count, err)
	}

	if err := accounts.DeleteUnlessLast(ctx, "user-2", first.ID); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected foreign user delete to report not found, got %v", err)
	}
	if err := accounts.DeleteUnlessLast(ctx, "user-1", first.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if err := accounts.DeleteUnlessLast(ctx, "user-1", first.ID); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
	if err := accounts.DeleteUnlessLast(ctx, "user-1", second.ID); !errors.Is(err, core.ErrLastLinkedAccount) {
		t.Fatalf("expected last account to be kept, got %v", err)
	}
	if _, err := accounts.Get(ctx, second.ID); err != nil {
		t.Fatalf("expected last account to remain, got %v", err)
	}
	if _, err := accounts.Get(ctx, first.ID); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected deleted account to be gone, got %v", err)
	}
	if _, err := factory.CredentialStore().Load(ctx, first.ID); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected deleted account credential to be gone, got %v", err)
	}
}

func TestRepositoryFactory_CachedCredentialStore(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	cfg := repositorycache.DefaultConfig()
	cfg.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cfg)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithCacheService(cacheService))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if _, ok := factory.CredentialStore().(*sqlstore.CachedCredentialStore); !ok {
		t.Fatalf("expected cached credential store, got %T", factory.CredentialStore())
	}

	account, err := factory.AccountStore().Create(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderTwitter,
		ProviderAccountID: "tw-1",
		AccessToken:       "tw.first",
		RefreshToken:      core.StringPtr("tw.refresh"),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	store := factory.CredentialStore()
	if _, err := store.Load(ctx, account.ID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Save(ctx, account.ID, core.CredentialUpdate{AccessToken: "tw.second"}); err != nil {
		t.Fatalf("save through cache: %v", err)
	}
	cred, err := store.Load(ctx, account.ID)
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if cred.AccessToken != "tw.second" {
		t.Fatalf("expected save to evict cached credential, got %q", cred.AccessToken)
	}
}

func TestService_WithSQLStores(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)

	strategy := &countingStrategy{
		provider: core.ProviderTikTok,
		result: core.RefreshResult{
			AccessToken:  "act.refreshed",
			RefreshToken: core.StringPtr("rft.refreshed"),
			ExpiresAt:    core.TimePtr(testNow.Add(24 * time.Hour)),
		},
	}
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(sqlstore.NewRepositoryFactory(sqlstore.WithClock(clock))),
		core.WithClock(clock),
		core.WithStrategies(strategy),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	account, err := svc.LinkAccount(ctx, core.LinkAccountInput{
		UserID:            "user-1",
		Provider:          core.ProviderTikTok,
		ProviderAccountID: "tt-1",
		AccessToken:       "act.stale",
		RefreshToken:      core.StringPtr("rft.stale"),
		ExpiresAt:         core.TimePtr(testNow.Add(2 * time.Minute)),
	})
	if err != nil {
		t.Fatalf("link account: %v", err)
	}

	token, ok, err := svc.GetValidAccessToken(ctx, account.ID)
	if err != nil || !ok {
		t.Fatalf("expected refreshed token, got ok=%t err=%v", ok, err)
	}
	if token != "act.refreshed" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if strategy.calls != 1 {
		t.Fatalf("expected one refresh call, got %d", strategy.calls)
	}

	token, ok, err = svc.GetValidAccessToken(ctx, account.ID)
	if err != nil || !ok || token != "act.refreshed" {
		t.Fatalf("expected stored token to be fresh, got %q ok=%t err=%v", token, ok, err)
	}
	if strategy.calls != 1 {
		t.Fatalf("expected no second refresh, got %d calls", strategy.calls)
	}

	if _, ok, err := svc.GetValidAccessToken(ctx, "missing-account"); err != nil || ok {
		t.Fatalf("expected missing account to yield no token, got ok=%t err=%v", ok, err)
	}

	if err := svc.UnlinkAccount(ctx, "user-1", account.ID); !errors.Is(err, core.ErrLastLinkedAccount) {
		t.Fatalf("expected last linked account guard, got %v", err)
	}
}

type countingStrategy struct {
	provider core.ProviderKind
	result   core.RefreshResult
	calls    int
}

func (s *countingStrategy) Provider() core.ProviderKind {
	return s.provider
}

func (s *countingStrategy) Refresh(context.Context, core.Credential) (core.RefreshResult, error) {
	s.calls++
	return s.result, nil
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:credentials-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	if err := credentialmigrations.Apply(context.Background(), client, credentialmigrations.DialectSQLite); err != nil {
		_ = client.Close()
		t.Fatalf("apply migrations: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}
