package twitter

import (
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/jonboulle/clockwork"
)

const (
	ProviderID = core.ProviderTwitter
	TokenURL   = "https://api.twitter.com/2/oauth2/token"
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

// Strategy authenticates the app with HTTP Basic; the body only carries the
// grant.
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
		ClientAuth:     providers.ClientAuthBasic,
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
