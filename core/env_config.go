package core

import (
	"context"
	"os"
	"strings"
)

// EnvConfigLoader reads provider client credentials from the process
// environment. TikTok names its client id "client key".
type EnvConfigLoader struct {
	Lookup func(key string) (string, bool)
}

var providerEnvKeys = map[ProviderKind][2]string{
	ProviderTikTok:    {"TIKTOK_CLIENT_KEY", "TIKTOK_CLIENT_SECRET"},
	ProviderTwitter:   {"TWITTER_CLIENT_ID", "TWITTER_CLIENT_SECRET"},
	ProviderGoogle:    {"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"},
	ProviderFacebook:  {"FACEBOOK_CLIENT_ID", "FACEBOOK_CLIENT_SECRET"},
	ProviderInstagram: {"INSTAGRAM_CLIENT_ID", "INSTAGRAM_CLIENT_SECRET"},
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	providers := map[string]any{}
	for _, kind := range AllProviderKinds() {
		keys := providerEnvKeys[kind]
		entry := map[string]any{}
		if value, ok := lookup(keys[0]); ok && strings.TrimSpace(value) != "" {
			entry["client_id"] = strings.TrimSpace(value)
		}
		if value, ok := lookup(keys[1]); ok && strings.TrimSpace(value) != "" {
			entry["client_secret"] = strings.TrimSpace(value)
		}
		if len(entry) > 0 {
			providers[string(kind)] = entry
		}
	}
	raw := map[string]any{}
	if len(providers) > 0 {
		raw["providers"] = providers
	}
	return raw, nil
}

var _ RawConfigLoader = EnvConfigLoader{}
