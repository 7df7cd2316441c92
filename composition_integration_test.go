package credentials_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/adapters/gocommand"
	credentialcommand "github.com/goliatone/go-credentials/command"
	"github.com/goliatone/go-credentials/core"
	credentialmigrations "github.com/goliatone/go-credentials/migrations"
	credentialquery "github.com/goliatone/go-credentials/query"
	"github.com/goliatone/go-credentials/security"
	sqlstore "github.com/goliatone/go-credentials/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var compositionNow = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

type compositionPersistenceConfig struct {
	dsn string
}

func (c compositionPersistenceConfig) GetDebug() bool                { return false }
func (c compositionPersistenceConfig) GetDriver() string             { return "sqlite3" }
func (c compositionPersistenceConfig) GetServer() string             { return c.dsn }
func (c compositionPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c compositionPersistenceConfig) GetOtelIdentifier() string     { return "go-credentials-composition" }

func TestComposition_RefreshesThroughSQLStoreAndProviderEndpoint(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(compositionNow)

	var tiktokCalls atomic.Int32
	tiktok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tiktokCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("client_key") != "tt-key" || r.PostForm.Get("refresh_token") != "rft.initial" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "act.refreshed",
			"refresh_token": "rft.rotated",
			"expires_in":    86400,
		})
	}))
	defer tiktok.Close()

	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		})
	}))
	defer google.Close()

	client := newCompositionClient(t)
	sealer, err := security.NewAppKeySealerFromString("composition-app-key")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	cfg := credentials.DefaultConfig()
	cfg.Providers = map[string]credentials.ProviderConfig{
		"tiktok": {ClientID: "tt-key", ClientSecret: "tt-secret", TokenURL: tiktok.URL},
		"google": {ClientID: "g-client", ClientSecret: "g-secret", TokenURL: google.URL},
	}
	svc, err := credentials.NewService(cfg,
		credentials.WithPersistenceClient(client),
		credentials.WithRepositoryFactory(sqlstore.NewRepositoryFactory(
			sqlstore.WithClock(clock),
			sqlstore.WithTokenSealer(sealer),
		)),
		credentials.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	tiktokAccount, err := svc.LinkAccount(ctx, credentials.LinkAccountInput{
		UserID:            "user-1",
		Provider:          credentials.ProviderTikTok,
		ProviderAccountID: "tt-1",
		AccessToken:       "act.initial",
		RefreshToken:      core.StringPtr("rft.initial"),
		ExpiresAt:         core.TimePtr(compositionNow.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("link tiktok account: %v", err)
	}
	googleAccount, err := svc.LinkAccount(ctx, credentials.LinkAccountInput{
		UserID:            "user-1",
		Provider:          credentials.ProviderGoogle,
		ProviderAccountID: "g-1",
		AccessToken:       "g.initial",
		RefreshToken:      core.StringPtr("g.refresh"),
		ExpiresAt:         core.TimePtr(compositionNow.Add(-time.Hour)),
	})
	if err != nil {
		t.Fatalf("link google account: %v", err)
	}

	token, ok, err := svc.GetValidAccessToken(ctx, tiktokAccount.ID)
	if err != nil || !ok || token != "act.refreshed" {
		t.Fatalf("expected refreshed tiktok token, got %q ok=%t err=%v", token, ok, err)
	}
	token, ok, err = svc.GetValidAccessToken(ctx, tiktokAccount.ID)
	if err != nil || !ok || token != "act.refreshed" {
		t.Fatalf("expected stored tiktok token, got %q ok=%t err=%v", token, ok, err)
	}
	if got := tiktokCalls.Load(); got != 1 {
		t.Fatalf("expected one token endpoint call, got %d", got)
	}

	stored, err := svc.Dependencies().CredentialStore.Load(ctx, tiktokAccount.ID)
	if err != nil {
		t.Fatalf("load stored credential: %v", err)
	}
	if stored.RefreshToken == nil || *stored.RefreshToken != "rft.rotated" {
		t.Fatalf("expected rotated refresh token, got %+v", stored.RefreshToken)
	}
	if stored.ExpiresAt == nil || !stored.ExpiresAt.Equal(compositionNow.Add(24*time.Hour)) {
		t.Fatalf("unexpected stored expiry %v", stored.ExpiresAt)
	}

	outcome, err := svc.EnsureFresh(ctx, googleAccount.ID)
	if err != nil {
		t.Fatalf("ensure fresh google: %v", err)
	}
	if outcome.State != core.TokenStateRefreshFailed || outcome.Valid() {
		t.Fatalf("expected refresh failure, got %#v", outcome)
	}
	if outcome.Failure == nil || !core.IsRemoteRejected(outcome.Failure) {
		t.Fatalf("expected remote rejection, got %#v", outcome.Failure)
	}
	if _, ok, err := svc.GetValidAccessToken(ctx, googleAccount.ID); err != nil || ok {
		t.Fatalf("expected relink signal for google, got ok=%t err=%v", ok, err)
	}

	facade, err := credentials.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	accounts, err := facade.Queries().ListLinkedAccounts.Query(ctx, credentialquery.ListLinkedAccountsMessage{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list linked accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected two linked accounts, got %d", len(accounts))
	}
	eligibility, err := facade.Queries().CanLinkAccount.Query(ctx, credentialquery.CanLinkAccountMessage{
		UserID:   "user-1",
		Provider: credentials.ProviderTikTok,
	})
	if err != nil {
		t.Fatalf("can link tiktok: %v", err)
	}
	if eligibility.CanLink {
		t.Fatalf("expected second tiktok account to be rejected")
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterCredentialHandlers(adapter, svc)
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	dispatched, err := gocommand.EnsureFresh(ctx, tiktokAccount.ID)
	if err != nil {
		t.Fatalf("dispatch ensure fresh: %v", err)
	}
	if dispatched.State != core.TokenStateFresh || dispatched.AccessToken != "act.refreshed" {
		t.Fatalf("unexpected dispatched outcome %#v", dispatched)
	}

	if err := gocommand.Dispatch(ctx, credentialcommand.UnlinkAccountMessage{
		UserID:    "user-1",
		AccountID: googleAccount.ID,
	}); err != nil {
		t.Fatalf("dispatch unlink: %v", err)
	}
	result, err := gocommand.Query[credentialquery.GetValidAccessTokenMessage, credentialquery.AccessTokenResult](
		ctx,
		credentialquery.GetValidAccessTokenMessage{AccountID: googleAccount.ID},
	)
	if err != nil {
		t.Fatalf("query unlinked account token: %v", err)
	}
	if result.OK {
		t.Fatalf("expected no token for unlinked account")
	}
}

func newCompositionClient(t *testing.T) *persistence.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:credentials-composition-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(compositionPersistenceConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	if err := credentialmigrations.Apply(context.Background(), client, credentialmigrations.DialectSQLite); err != nil {
		_ = client.Close()
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
