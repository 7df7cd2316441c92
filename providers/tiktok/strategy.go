package tiktok

import (
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/jonboulle/clockwork"
)

const (
	ProviderID = core.ProviderTikTok
	TokenURL   = "https://open.tiktokapis.com/v2/oauth/token/"
)

// Config carries the app credentials. TikTok calls the client id a client
// key and expects it under that name in the request body.
type Config struct {
	ClientKey      string
	ClientSecret   string
	TokenURL       string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	HTTPClient     providers.HTTPDoer
}

type Strategy struct {
	*providers.RefreshGrantStrategy
}

func DefaultConfig() Config {
	return Config{TokenURL: TokenURL}
}

func New(cfg Config) (*Strategy, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = DefaultConfig().TokenURL
	}
	strategy, err := providers.NewRefreshGrantStrategy(providers.RefreshGrantConfig{
		Provider:       ProviderID,
		TokenURL:       cfg.TokenURL,
		ClientID:       cfg.ClientKey,
		ClientSecret:   cfg.ClientSecret,
		ClientIDParam:  "client_key",
		ClientAuth:     providers.ClientAuthBody,
		TokenTTL:       cfg.TokenTTL,
		RequestTimeout: cfg.RequestTimeout,
		Clock:          cfg.Clock,
		HTTPClient:     cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Strategy{RefreshGrantStrategy: strategy}, nil
}
