package credentials

import (
	"fmt"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
	"github.com/goliatone/go-credentials/providers/google"
	"github.com/goliatone/go-credentials/providers/meta/facebook"
	"github.com/goliatone/go-credentials/providers/meta/instagram"
	"github.com/goliatone/go-credentials/providers/tiktok"
	"github.com/goliatone/go-credentials/providers/twitter"
	"github.com/jonboulle/clockwork"
)

func TikTokStrategy(cfg tiktok.Config) (core.RefreshStrategy, error) {
	return tiktok.New(cfg)
}

func TwitterStrategy(cfg twitter.Config) (core.RefreshStrategy, error) {
	return twitter.New(cfg)
}

func GoogleStrategy(cfg google.Config) (core.RefreshStrategy, error) {
	return google.New(cfg)
}

func FacebookStrategy(cfg facebook.Config) (core.RefreshStrategy, error) {
	return facebook.New(cfg)
}

func InstagramStrategy(cfg instagram.Config) (core.RefreshStrategy, error) {
	return instagram.New(cfg)
}

// ProviderStrategies returns a strategy factory that builds one strategy per
// provider configured under providers.<kind>. Instagram needs no app
// credentials and is always built. A configured provider with missing
// credentials fails the build.
func ProviderStrategies(httpClient providers.HTTPDoer) core.StrategyFactory {
	return func(cfg core.Config, clock clockwork.Clock) ([]core.RefreshStrategy, error) {
		timeout := cfg.Refresh.RequestTimeout()
		ttl := cfg.Refresh.TokenTTL()
		out := make([]core.RefreshStrategy, 0, len(core.AllProviderKinds()))

		for _, kind := range core.AllProviderKinds() {
			providerCfg := cfg.Provider(kind)
			if kind != core.ProviderInstagram && providerCfg.IsZero() {
				continue
			}
			strategy, err := buildStrategy(kind, providerCfg, ttl, timeout, clock, httpClient)
			if err != nil {
				return nil, fmt.Errorf("credentials: build %s strategy: %w", kind, err)
			}
			out = append(out, strategy)
		}
		return out, nil
	}
}

func buildStrategy(
	kind core.ProviderKind,
	cfg core.ProviderConfig,
	ttl time.Duration,
	timeout time.Duration,
	clock clockwork.Clock,
	httpClient providers.HTTPDoer,
) (core.RefreshStrategy, error) {
	switch kind {
	case core.ProviderTikTok:
		return TikTokStrategy(tiktok.Config{
			ClientKey:      cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			TokenTTL:       ttl,
			RequestTimeout: timeout,
			Clock:          clock,
			HTTPClient:     httpClient,
		})
	case core.ProviderTwitter:
		return TwitterStrategy(twitter.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			TokenTTL:       ttl,
			RequestTimeout: timeout,
			Clock:          clock,
			HTTPClient:     httpClient,
		})
	case core.ProviderGoogle:
		return GoogleStrategy(google.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			TokenTTL:       ttl,
			RequestTimeout: timeout,
			Clock:          clock,
			HTTPClient:     httpClient,
		})
	case core.ProviderFacebook:
		return FacebookStrategy(facebook.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			RequestTimeout: timeout,
			Clock:          clock,
			HTTPClient:     httpClient,
		})
	case core.ProviderInstagram:
		return InstagramStrategy(instagram.Config{
			TokenURL:       cfg.TokenURL,
			RequestTimeout: timeout,
			Clock:          clock,
			HTTPClient:     httpClient,
		})
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownProvider, kind)
	}
}
