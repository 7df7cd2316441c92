package core

import (
	"context"
	"fmt"
	"strings"
)

const ReasonProviderAlreadyConnected = "account from this provider is already connected"

// CanLinkAccount reports whether userID may link another account of the
// given provider. A user holds at most one account per provider.
func (s *Service) CanLinkAccount(ctx context.Context, userID string, provider ProviderKind) (eligibility LinkEligibility, err error) {
	startedAt := s.clock.Now()
	fields := map[string]any{"user_id": userID, "provider": string(provider)}
	defer func() {
		fields["can_link"] = eligibility.CanLink
		s.observeOperation(ctx, startedAt, "can_link_account", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return LinkEligibility{}, s.mapError(fmt.Errorf("core: user id is required"))
	}
	kind, err := ParseProviderKind(string(provider))
	if err != nil {
		return LinkEligibility{}, s.mapError(err)
	}
	if err := s.requireAccountStore(); err != nil {
		return LinkEligibility{}, s.mapError(err)
	}
	_, found, err := s.accountStore.FindByUserAndProvider(ctx, userID, kind)
	if err != nil {
		return LinkEligibility{}, s.mapError(err)
	}
	if found {
		return LinkEligibility{CanLink: false, Reason: ReasonProviderAlreadyConnected}, nil
	}
	return LinkEligibility{CanLink: true}, nil
}

// LinkAccount stores a new linked account together with its initial
// credential.
func (s *Service) LinkAccount(ctx context.Context, input LinkAccountInput) (account LinkedAccount, err error) {
	startedAt := s.clock.Now()
	fields := map[string]any{"user_id": input.UserID, "provider": string(input.Provider)}
	defer func() {
		if account.ID != "" {
			fields["account_id"] = account.ID
		}
		s.observeOperation(ctx, startedAt, "link_account", err, fields)
	}()

	input.UserID = strings.TrimSpace(input.UserID)
	input.ProviderAccountID = strings.TrimSpace(input.ProviderAccountID)
	if input.UserID == "" {
		return LinkedAccount{}, s.mapError(fmt.Errorf("core: user id is required"))
	}
	if input.ProviderAccountID == "" {
		return LinkedAccount{}, s.mapError(fmt.Errorf("core: provider account id is required"))
	}
	if strings.TrimSpace(input.AccessToken) == "" {
		return LinkedAccount{}, s.mapError(fmt.Errorf("core: access token is required"))
	}
	kind, err := ParseProviderKind(string(input.Provider))
	if err != nil {
		return LinkedAccount{}, s.mapError(err)
	}
	input.Provider = kind

	eligibility, err := s.CanLinkAccount(ctx, input.UserID, kind)
	if err != nil {
		return LinkedAccount{}, err
	}
	if !eligibility.CanLink {
		return LinkedAccount{}, s.mapError(ErrAccountAlreadyLinked)
	}

	input.Profile = cloneProfile(input.Profile)
	input.RefreshToken = cloneStringPtr(input.RefreshToken)
	input.ExpiresAt = cloneTimePtr(input.ExpiresAt)
	account, err = s.accountStore.Create(ctx, input)
	if err != nil {
		return LinkedAccount{}, s.mapError(err)
	}
	return account, nil
}

// UnlinkAccount removes an account owned by userID. The last linked account
// of a user cannot be removed.
func (s *Service) UnlinkAccount(ctx context.Context, userID string, accountID string) (err error) {
	startedAt := s.clock.Now()
	fields := map[string]any{"user_id": userID, "account_id": accountID}
	defer func() {
		s.observeOperation(ctx, startedAt, "unlink_account", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	accountID = strings.TrimSpace(accountID)
	if userID == "" {
		return s.mapError(fmt.Errorf("core: user id is required"))
	}
	if accountID == "" {
		return s.mapError(fmt.Errorf("core: account id is required"))
	}
	if err := s.requireAccountStore(); err != nil {
		return s.mapError(err)
	}

	account, err := s.accountStore.Get(ctx, accountID)
	if err != nil {
		return s.mapError(err)
	}
	if account.UserID != userID {
		return s.mapError(ErrAccountNotFound)
	}
	fields["provider"] = string(account.Provider)

	if err := s.accountStore.DeleteUnlessLast(ctx, userID, accountID); err != nil {
		return s.mapError(err)
	}
	if invalidator, ok := s.credentialStore.(CredentialCacheInvalidator); ok {
		if cacheErr := invalidator.Invalidate(ctx, accountID); cacheErr != nil {
			s.logWarn(ctx, "credential cache eviction failed", map[string]any{
				"account_id": accountID,
				"error":      cacheErr.Error(),
			})
		}
	}
	return nil
}

// ListLinkedAccounts returns the user's accounts, oldest first.
func (s *Service) ListLinkedAccounts(ctx context.Context, userID string) (accounts []LinkedAccount, err error) {
	startedAt := s.clock.Now()
	fields := map[string]any{"user_id": userID}
	defer func() {
		fields["count"] = len(accounts)
		s.observeOperation(ctx, startedAt, "list_linked_accounts", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, s.mapError(fmt.Errorf("core: user id is required"))
	}
	if err := s.requireAccountStore(); err != nil {
		return nil, s.mapError(err)
	}
	accounts, err = s.accountStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	if accounts == nil {
		accounts = []LinkedAccount{}
	}
	return accounts, nil
}
