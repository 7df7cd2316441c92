package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetValidAccessToken returns a usable access token for the account,
// refreshing it first when it is about to expire. ok is false when the user
// has to link the account again; err is reserved for misuse and
// infrastructure faults.
func (s *Service) GetValidAccessToken(ctx context.Context, accountID string) (token string, ok bool, err error) {
	outcome, err := s.EnsureFresh(ctx, accountID)
	if err != nil {
		return "", false, err
	}
	if !outcome.Valid() {
		return "", false, nil
	}
	return outcome.AccessToken, true, nil
}

// EnsureFresh runs one load, evaluate, refresh, save pass and reports how it
// ended. Concurrent calls for the same account share a single pass unless
// coalescing is disabled.
func (s *Service) EnsureFresh(ctx context.Context, accountID string) (TokenOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return TokenOutcome{}, s.mapError(fmt.Errorf("core: account id is required"))
	}
	if err := s.requireCredentialStore(); err != nil {
		return TokenOutcome{}, s.mapError(err)
	}
	if s.config.Refresh.DisableCoalescing {
		return s.ensureFresh(ctx, accountID)
	}

	results := s.refreshGroup.DoChan(accountID, func() (any, error) {
		return s.ensureFresh(context.WithoutCancel(ctx), accountID)
	})
	select {
	case <-ctx.Done():
		return TokenOutcome{AccountID: accountID}, ctx.Err()
	case result := <-results:
		outcome, _ := result.Val.(TokenOutcome)
		return outcome, result.Err
	}
}

func (s *Service) ensureFresh(ctx context.Context, accountID string) (TokenOutcome, error) {
	startedAt := s.clock.Now()
	outcome := TokenOutcome{AccountID: accountID}

	cred, err := s.credentialStore.Load(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			outcome.State = TokenStateMissing
			s.observeToken(ctx, startedAt, outcome)
			return outcome, nil
		}
		loadErr := &RefreshError{
			Kind:      FailureStore,
			AccountID: accountID,
			Message:   "load credential",
			Cause:     err,
		}
		s.logError(ctx, "credential load failed", map[string]any{
			"account_id": accountID,
			"error":      err.Error(),
		})
		return outcome, s.mapError(loadErr)
	}

	provider, err := ParseProviderKind(string(cred.Provider))
	if err != nil {
		s.logError(ctx, "credential has unknown provider", map[string]any{
			"account_id": accountID,
			"provider":   string(cred.Provider),
		})
		return outcome, s.mapError(err)
	}
	cred.Provider = provider
	cred.AccountID = accountID
	outcome.Provider = provider
	outcome.ExpiresAt = cloneTimePtr(cred.ExpiresAt)

	if !cred.HasAccessToken() {
		outcome.State = TokenStateMissing
		s.observeToken(ctx, startedAt, outcome)
		return outcome, nil
	}

	if !s.policy.IsStale(cred.ExpiresAt) {
		outcome.State = TokenStateFresh
		outcome.AccessToken = cred.AccessToken
		s.observeToken(ctx, startedAt, outcome)
		return outcome, nil
	}

	outcome.State = TokenStateStale
	strategy, err := s.strategyFor(provider)
	if err != nil {
		if !errors.Is(err, ErrProviderNotConfigured) {
			return outcome, s.mapError(err)
		}
		failure := NewPreconditionError(provider, "provider not configured")
		failure.AccountID = accountID
		failure.Cause = err
		outcome.State = TokenStateRefreshFailed
		outcome.Failure = failure
		s.observeToken(ctx, startedAt, outcome)
		return outcome, nil
	}

	outcome.State = TokenStateRefreshing
	outcome.RefreshAttempted = true
	result, err := strategy.Refresh(ctx, cred)
	if err == nil && strings.TrimSpace(result.AccessToken) == "" {
		err = NewRemoteRejectedError(provider, fmt.Errorf("core: strategy returned an empty access token"))
	}
	if err != nil {
		failure := AsRefreshError(err, provider)
		failure.AccountID = accountID
		outcome.State = TokenStateRefreshFailed
		outcome.Failure = failure
		s.observeToken(ctx, startedAt, outcome)
		return outcome, nil
	}

	update := CredentialUpdate{
		AccessToken:  result.AccessToken,
		RefreshToken: cloneStringPtr(result.RefreshToken),
		ExpiresAt:    cloneTimePtr(result.ExpiresAt),
	}
	outcome.State = TokenStateRefreshed
	outcome.AccessToken = result.AccessToken
	if update.ExpiresAt != nil {
		outcome.ExpiresAt = cloneTimePtr(update.ExpiresAt)
	}
	if saveErr := s.credentialStore.Save(ctx, accountID, update); saveErr != nil {
		outcome.StoreErr = &RefreshError{
			Kind:      FailureStore,
			Provider:  provider,
			AccountID: accountID,
			Message:   "save refreshed credential",
			Cause:     saveErr,
		}
	}
	s.observeToken(ctx, startedAt, outcome)
	return outcome, nil
}

// strategyFor dispatches on the closed provider set. A known provider without
// a registered strategy reports ErrProviderNotConfigured.
func (s *Service) strategyFor(provider ProviderKind) (RefreshStrategy, error) {
	switch provider {
	case ProviderTikTok, ProviderTwitter, ProviderGoogle, ProviderFacebook, ProviderInstagram:
		if s.registry == nil {
			return nil, fmt.Errorf("core: strategy registry is required")
		}
		strategy, ok := s.registry.Get(provider)
		if !ok || strategy == nil {
			return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, provider)
		}
		return strategy, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// IsStale reports whether expiresAt falls inside the configured refresh
// window at the service clock's current time.
func (s *Service) IsStale(expiresAt *time.Time) bool {
	return s.ExpiryPolicy().IsStale(expiresAt)
}
