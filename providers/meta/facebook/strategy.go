package facebook

import (
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/goliatone/go-credentials/providers/meta/common"
	"github.com/jonboulle/clockwork"
)

const (
	ProviderID = core.ProviderFacebook
	TokenURL   = "https://graph.facebook.com/" + common.GraphAPIVersion + "/oauth/access_token"
	GrantType  = "fb_exchange_token"
)

type Config struct {
	ClientID       string
	ClientSecret   string
	TokenURL       string
	FallbackTTL    time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	HTTPClient     providers.HTTPDoer
}

type Strategy struct {
	*common.ExchangeStrategy
}

func DefaultConfig() Config {
	return Config{TokenURL: TokenURL, FallbackTTL: providers.DefaultLongLivedTokenTTL}
}

// New builds a strategy that exchanges the current token for a new
// long-lived one. App credentials are mandatory.
func New(cfg Config) (*Strategy, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = defaults.FallbackTTL
	}
	strategy, err := common.NewExchangeStrategy(common.ExchangeConfig{
		Provider:       ProviderID,
		TokenURL:       cfg.TokenURL,
		GrantType:      GrantType,
		TokenParam:     GrantType,
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		RequireClient:  true,
		FallbackTTL:    cfg.FallbackTTL,
		RequestTimeout: cfg.RequestTimeout,
		Clock:          cfg.Clock,
		HTTPClient:     cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Strategy{ExchangeStrategy: strategy}, nil
}
