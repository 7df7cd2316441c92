package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultTokenTTL       = time.Hour
)

type RefreshConfig struct {
	StaleBufferSeconds    int  `koanf:"stale_buffer_seconds" mapstructure:"stale_buffer_seconds"`
	RequestTimeoutSeconds int  `koanf:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	TokenTTLSeconds       int  `koanf:"token_ttl_seconds" mapstructure:"token_ttl_seconds"`
	DisableCoalescing     bool `koanf:"disable_coalescing" mapstructure:"disable_coalescing"`
}

func (c RefreshConfig) StaleBuffer() time.Duration {
	if c.StaleBufferSeconds <= 0 {
		return DefaultStaleBuffer
	}
	return time.Duration(c.StaleBufferSeconds) * time.Second
}

func (c RefreshConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c RefreshConfig) TokenTTL() time.Duration {
	if c.TokenTTLSeconds <= 0 {
		return DefaultTokenTTL
	}
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// ProviderConfig holds the application credentials registered with a
// provider. TokenURL overrides the production endpoint.
type ProviderConfig struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
	TokenURL     string `koanf:"token_url" mapstructure:"token_url"`
}

func (c ProviderConfig) IsZero() bool {
	return strings.TrimSpace(c.ClientID) == "" &&
		strings.TrimSpace(c.ClientSecret) == "" &&
		strings.TrimSpace(c.TokenURL) == ""
}

type Config struct {
	ServiceName string                    `koanf:"service_name" mapstructure:"service_name"`
	Refresh     RefreshConfig             `koanf:"refresh" mapstructure:"refresh"`
	Providers   map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "credentials",
		Refresh: RefreshConfig{
			StaleBufferSeconds:    int(DefaultStaleBuffer / time.Second),
			RequestTimeoutSeconds: int(DefaultRequestTimeout / time.Second),
			TokenTTLSeconds:       int(DefaultTokenTTL / time.Second),
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Provider returns the configuration for kind, zero when unset.
func (c Config) Provider(kind ProviderKind) ProviderConfig {
	if len(c.Providers) == 0 {
		return ProviderConfig{}
	}
	return c.Providers[string(kind)]
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Refresh.StaleBufferSeconds < 0 {
		return fmt.Errorf("core: refresh.stale_buffer_seconds must not be negative")
	}
	if c.Refresh.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("core: refresh.request_timeout_seconds must not be negative")
	}
	if c.Refresh.TokenTTLSeconds < 0 {
		return fmt.Errorf("core: refresh.token_ttl_seconds must not be negative")
	}
	for key := range c.Providers {
		if _, err := ParseProviderKind(key); err != nil {
			return fmt.Errorf("core: invalid providers entry: %w", err)
		}
	}
	return nil
}
