package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/jonboulle/clockwork"
)

type ClientAuthMode string

const (
	ClientAuthBody  ClientAuthMode = "body"
	ClientAuthBasic ClientAuthMode = "basic"
)

const defaultClientIDParam = "client_id"

// RefreshGrantConfig describes an RFC 6749 refresh_token grant. ClientIDParam
// renames the client identifier field for providers that do not use
// client_id in the body.
type RefreshGrantConfig struct {
	Provider       core.ProviderKind
	TokenURL       string
	ClientID       string
	ClientSecret   string
	ClientIDParam  string
	ClientAuth     ClientAuthMode
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	HTTPClient     HTTPDoer
}

type RefreshGrantStrategy struct {
	cfg    RefreshGrantConfig
	client *TokenClient
	clock  clockwork.Clock
}

func NewRefreshGrantStrategy(cfg RefreshGrantConfig) (*RefreshGrantStrategy, error) {
	provider, err := core.ParseProviderKind(string(cfg.Provider))
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	cfg.Provider = provider
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", provider)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", provider)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("providers: client secret is required for provider %q", provider)
	}
	if strings.TrimSpace(cfg.ClientIDParam) == "" {
		cfg.ClientIDParam = defaultClientIDParam
	}
	switch cfg.ClientAuth {
	case "":
		cfg.ClientAuth = ClientAuthBody
	case ClientAuthBody, ClientAuthBasic:
	default:
		return nil, fmt.Errorf("providers: unsupported client auth mode %q", cfg.ClientAuth)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RefreshGrantStrategy{
		cfg:    cfg,
		client: NewTokenClient(cfg.HTTPClient, cfg.RequestTimeout),
		clock:  clock,
	}, nil
}

func (s *RefreshGrantStrategy) Provider() core.ProviderKind {
	if s == nil {
		return ""
	}
	return s.cfg.Provider
}

func (s *RefreshGrantStrategy) Refresh(ctx context.Context, credential core.Credential) (core.RefreshResult, error) {
	if s == nil {
		return core.RefreshResult{}, fmt.Errorf("providers: refresh strategy is nil")
	}
	if !credential.HasRefreshToken() {
		return core.RefreshResult{}, core.NewPreconditionError(s.cfg.Provider, "no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", strings.TrimSpace(*credential.RefreshToken))
	request := TokenRequest{
		Method: http.MethodPost,
		URL:    s.cfg.TokenURL,
		Form:   form,
	}
	switch s.cfg.ClientAuth {
	case ClientAuthBasic:
		request.BasicAuth = &BasicAuth{Username: s.cfg.ClientID, Password: s.cfg.ClientSecret}
	default:
		form.Set(s.cfg.ClientIDParam, s.cfg.ClientID)
		form.Set("client_secret", s.cfg.ClientSecret)
	}

	payload, err := s.client.Fetch(ctx, request)
	if err != nil {
		return core.RefreshResult{}, core.NewRemoteRejectedError(s.cfg.Provider, err)
	}

	result := core.RefreshResult{
		AccessToken: strings.TrimSpace(payload.AccessToken),
		ExpiresAt:   ResolveExpiresAt(s.clock.Now(), payload.ExpiresIn, s.cfg.TokenTTL),
	}
	if refreshToken := strings.TrimSpace(payload.RefreshToken); refreshToken != "" {
		result.RefreshToken = &refreshToken
	}
	return result, nil
}
