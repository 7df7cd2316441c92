package core

import (
	"fmt"
	"strings"
	"time"
)

type ProviderKind string

const (
	ProviderTikTok    ProviderKind = "tiktok"
	ProviderTwitter   ProviderKind = "twitter"
	ProviderGoogle    ProviderKind = "google"
	ProviderFacebook  ProviderKind = "facebook"
	ProviderInstagram ProviderKind = "instagram"
)

// AllProviderKinds returns every supported provider in a stable order.
func AllProviderKinds() []ProviderKind {
	return []ProviderKind{
		ProviderTikTok,
		ProviderTwitter,
		ProviderGoogle,
		ProviderFacebook,
		ProviderInstagram,
	}
}

// ParseProviderKind normalizes a stored provider tag. Unknown tags are rejected
// with ErrUnknownProvider.
func ParseProviderKind(value string) (ProviderKind, error) {
	normalized := ProviderKind(strings.TrimSpace(strings.ToLower(value)))
	switch normalized {
	case ProviderTikTok, ProviderTwitter, ProviderGoogle, ProviderFacebook, ProviderInstagram:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, value)
	}
}

func (p ProviderKind) String() string {
	return string(p)
}

// RequiresRefreshToken reports whether the provider refreshes through a
// refresh-token grant. Token-exchange providers renew the access token itself.
func (p ProviderKind) RequiresRefreshToken() bool {
	switch p {
	case ProviderTikTok, ProviderTwitter, ProviderGoogle:
		return true
	default:
		return false
	}
}

type TokenState string

const (
	TokenStateMissing       TokenState = "missing"
	TokenStateFresh         TokenState = "fresh"
	TokenStateStale         TokenState = "stale"
	TokenStateRefreshing    TokenState = "refreshing"
	TokenStateRefreshed     TokenState = "refreshed"
	TokenStateRefreshFailed TokenState = "refresh_failed"
)

// Credential is the stored token material for one linked account.
type Credential struct {
	AccountID    string
	Provider     ProviderKind
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

func (c Credential) HasAccessToken() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != nil && strings.TrimSpace(*c.RefreshToken) != ""
}

// RefreshResult is what a strategy obtained from the provider. A nil
// RefreshToken means the provider did not issue one and the stored value must
// be kept.
type RefreshResult struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}

// CredentialUpdate is a partial update; nil fields are left untouched.
type CredentialUpdate struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}

// TokenOutcome describes how a single freshness check ended.
type TokenOutcome struct {
	AccountID        string
	Provider         ProviderKind
	State            TokenState
	AccessToken      string
	ExpiresAt        *time.Time
	RefreshAttempted bool
	Failure          *RefreshError
	StoreErr         error
}

// Valid reports whether the outcome carries a usable access token.
func (o TokenOutcome) Valid() bool {
	switch o.State {
	case TokenStateFresh, TokenStateRefreshed:
		return strings.TrimSpace(o.AccessToken) != ""
	default:
		return false
	}
}

type LinkedAccount struct {
	ID                string
	UserID            string
	Provider          ProviderKind
	ProviderAccountID string
	Profile           map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastSyncedAt      *time.Time
}

type LinkAccountInput struct {
	UserID            string
	Provider          ProviderKind
	ProviderAccountID string
	Profile           map[string]any
	AccessToken       string
	RefreshToken      *string
	ExpiresAt         *time.Time
}

type LinkEligibility struct {
	CanLink bool
	Reason  string
}

func StringPtr(value string) *string {
	return &value
}

func TimePtr(value time.Time) *time.Time {
	return &value
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func cloneProfile(profile map[string]any) map[string]any {
	if len(profile) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(profile))
	for key, value := range profile {
		out[key] = value
	}
	return out
}
