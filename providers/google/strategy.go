package google

import (
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/jonboulle/clockwork"
)

const (
	ProviderID = core.ProviderGoogle
	TokenURL   = "https://oauth2.googleapis.com/token"
)

type Config struct {
	ClientID       string
	ClientSecret   string
	TokenURL       string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	HTTPClient     providers.HTTPDoer
}

// Strategy refreshes Google (YouTube) tokens. Google usually omits the
// refresh token from refresh responses; the stored one is then kept.
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
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
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
