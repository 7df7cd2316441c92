package instagram

import (
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/goliatone/go-credentials/providers/meta/common"
	"github.com/jonboulle/clockwork"
)

const (
	ProviderID = core.ProviderInstagram
	TokenURL   = "https://graph.instagram.com/refresh_access_token"
	GrantType  = "ig_refresh_token"
)

type Config struct {
	TokenURL       string
	FallbackTTL    time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	HTTPClient     providers.HTTPDoer
}

// Strategy extends a long-lived Instagram token. The endpoint only needs the
// token itself, so no app credentials are configured.
type Strategy struct {
	*common.ExchangeStrategy
}

func DefaultConfig() Config {
	return Config{TokenURL: TokenURL, FallbackTTL: providers.DefaultLongLivedTokenTTL}
}

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
		TokenParam:     "access_token",
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
