package common

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/jonboulle/clockwork"
)

const GraphAPIVersion = "v18.0"

// ExchangeConfig describes a Graph API style refresh: the current access token
// is exchanged for a new long-lived one through a GET request. No refresh
// token is involved.
type ExchangeConfig struct {
	Provider       core.ProviderKind
	TokenURL       string
	GrantType      string
	TokenParam     string
	ClientID       string
	ClientSecret   string
	RequireClient  bool
	FallbackTTL    time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	HTTPClient     providers.HTTPDoer
}

type ExchangeStrategy struct {
	cfg    ExchangeConfig
	client *providers.TokenClient
	clock  clockwork.Clock
}

func NewExchangeStrategy(cfg ExchangeConfig) (*ExchangeStrategy, error) {
	provider, err := core.ParseProviderKind(string(cfg.Provider))
	if err != nil {
		return nil, fmt.Errorf("providers/meta/common: %w", err)
	}
	cfg.Provider = provider
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.GrantType = strings.TrimSpace(cfg.GrantType)
	cfg.TokenParam = strings.TrimSpace(cfg.TokenParam)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("providers/meta/common: token url is required for provider %q", provider)
	}
	if cfg.GrantType == "" || cfg.TokenParam == "" {
		return nil, fmt.Errorf("providers/meta/common: grant type and token param are required for provider %q", provider)
	}
	if cfg.RequireClient && (cfg.ClientID == "" || cfg.ClientSecret == "") {
		return nil, fmt.Errorf("providers/meta/common: client id and secret are required for provider %q", provider)
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = providers.DefaultLongLivedTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ExchangeStrategy{
		cfg:    cfg,
		client: providers.NewTokenClient(cfg.HTTPClient, cfg.RequestTimeout),
		clock:  clock,
	}, nil
}

func (s *ExchangeStrategy) Provider() core.ProviderKind {
	if s == nil {
		return ""
	}
	return s.cfg.Provider
}

// Refresh never returns a refresh token, so the stored one is left as is.
func (s *ExchangeStrategy) Refresh(ctx context.Context, credential core.Credential) (core.RefreshResult, error) {
	if s == nil {
		return core.RefreshResult{}, fmt.Errorf("providers/meta/common: exchange strategy is nil")
	}
	if !credential.HasAccessToken() {
		return core.RefreshResult{}, core.NewPreconditionError(s.cfg.Provider, "no access token to exchange")
	}

	query := url.Values{}
	query.Set("grant_type", s.cfg.GrantType)
	if s.cfg.ClientID != "" {
		query.Set("client_id", s.cfg.ClientID)
	}
	if s.cfg.ClientSecret != "" {
		query.Set("client_secret", s.cfg.ClientSecret)
	}
	query.Set(s.cfg.TokenParam, strings.TrimSpace(credential.AccessToken))

	payload, err := s.client.Fetch(ctx, providers.TokenRequest{
		Method: http.MethodGet,
		URL:    s.cfg.TokenURL,
		Query:  query,
	})
	if err != nil {
		return core.RefreshResult{}, core.NewRemoteRejectedError(s.cfg.Provider, err)
	}
	return core.RefreshResult{
		AccessToken: strings.TrimSpace(payload.AccessToken),
		ExpiresAt:   providers.ResolveExpiresAt(s.clock.Now(), payload.ExpiresIn, s.cfg.FallbackTTL),
	}, nil
}
