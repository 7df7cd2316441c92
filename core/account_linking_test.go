package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newLinkingService(t *testing.T) (*Service, *memoryAccountStore, *memoryCredentialStore) {
	t.Helper()
	credentials := newMemoryCredentialStore()
	svc, clock := newTestService(t, credentials)
	accounts := newMemoryAccountStore(credentials, clock)
	svc.accountStore = accounts
	return svc, accounts, credentials
}

func linkInput(userID string, provider ProviderKind) LinkAccountInput {
	return LinkAccountInput{
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: "ext_" + string(provider),
		AccessToken:       "token_" + string(provider),
		ExpiresAt:         TimePtr(testNow.Add(time.Hour)),
		Profile:           map[string]any{"display_name": "creator"},
	}
}

func TestCanLinkAccount_OneAccountPerProvider(t *testing.T) {
	svc, _, _ := newLinkingService(t)
	ctx := context.Background()

	eligibility, err := svc.CanLinkAccount(ctx, "usr_1", ProviderTikTok)
	if err != nil {
		t.Fatalf("can link: %v", err)
	}
	if !eligibility.CanLink {
		t.Fatalf("expected first tiktok account to be linkable")
	}

	if _, err := svc.LinkAccount(ctx, linkInput("usr_1", ProviderTikTok)); err != nil {
		t.Fatalf("link account: %v", err)
	}

	eligibility, err = svc.CanLinkAccount(ctx, "usr_1", ProviderTikTok)
	if err != nil {
		t.Fatalf("can link: %v", err)
	}
	if eligibility.CanLink {
		t.Fatalf("expected second tiktok account to be refused")
	}
	if eligibility.Reason != ReasonProviderAlreadyConnected {
		t.Fatalf("expected reason %q, got %q", ReasonProviderAlreadyConnected, eligibility.Reason)
	}

	eligibility, err = svc.CanLinkAccount(ctx, "usr_2", ProviderTikTok)
	if err != nil || !eligibility.CanLink {
		t.Fatalf("expected other users to remain unaffected, got %+v err=%v", eligibility, err)
	}
}

func TestCanLinkAccount_RejectsUnknownProvider(t *testing.T) {
	svc, _, _ := newLinkingService(t)
	_, err := svc.CanLinkAccount(context.Background(), "usr_1", ProviderKind("friendster"))
	assertTextCode(t, err, ErrorUnknownProvider)
}

func TestLinkAccount_StoresInitialCredential(t *testing.T) {
	svc, _, credentials := newLinkingService(t)
	ctx := context.Background()

	account, err := svc.LinkAccount(ctx, linkInput("usr_1", ProviderFacebook))
	if err != nil {
		t.Fatalf("link account: %v", err)
	}
	if account.ID == "" || account.Provider != ProviderFacebook {
		t.Fatalf("unexpected account %+v", account)
	}
	stored := credentials.get(account.ID)
	if stored.AccessToken != "token_facebook" {
		t.Fatalf("expected initial credential to be stored, got %+v", stored)
	}

	token, ok, err := svc.GetValidAccessToken(ctx, account.ID)
	if err != nil || !ok || token != "token_facebook" {
		t.Fatalf("expected linked token to be served, got %q ok=%t err=%v", token, ok, err)
	}

	_, err = svc.LinkAccount(ctx, linkInput("usr_1", ProviderFacebook))
	assertTextCode(t, err, ErrorAccountAlreadyLinked)
}

func TestLinkAccount_ValidatesInput(t *testing.T) {
	svc, _, _ := newLinkingService(t)
	ctx := context.Background()

	missingToken := linkInput("usr_1", ProviderGoogle)
	missingToken.AccessToken = " "
	_, err := svc.LinkAccount(ctx, missingToken)
	assertTextCode(t, err, ErrorBadInput)

	missingUser := linkInput("", ProviderGoogle)
	_, err = svc.LinkAccount(ctx, missingUser)
	assertTextCode(t, err, ErrorBadInput)
}

func TestUnlinkAccount_Rules(t *testing.T) {
	svc, accounts, credentials := newLinkingService(t)
	ctx := context.Background()

	first, err := svc.LinkAccount(ctx, linkInput("usr_1", ProviderTikTok))
	if err != nil {
		t.Fatalf("link tiktok: %v", err)
	}

	err = svc.UnlinkAccount(ctx, "usr_1", first.ID)
	assertTextCode(t, err, ErrorLastLinkedAccount)

	second, err := svc.LinkAccount(ctx, linkInput("usr_1", ProviderInstagram))
	if err != nil {
		t.Fatalf("link instagram: %v", err)
	}

	err = svc.UnlinkAccount(ctx, "usr_2", second.ID)
	assertTextCode(t, err, ErrorAccountNotFound)

	if err := svc.UnlinkAccount(ctx, "usr_1", second.ID); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if len(accounts.deleted) != 1 || accounts.deleted[0] != second.ID {
		t.Fatalf("expected %s to be deleted, got %v", second.ID, accounts.deleted)
	}
	if len(credentials.invalidated) != 1 || credentials.invalidated[0] != second.ID {
		t.Fatalf("expected cached credential eviction for %s, got %v", second.ID, credentials.invalidated)
	}
}

func TestListLinkedAccounts_OrderedByCreation(t *testing.T) {
	svc, _, _ := newLinkingService(t)
	ctx := context.Background()

	order := []ProviderKind{ProviderTwitter, ProviderGoogle, ProviderTikTok}
	for _, provider := range order {
		if _, err := svc.LinkAccount(ctx, linkInput("usr_1", provider)); err != nil {
			t.Fatalf("link %s: %v", provider, err)
		}
	}

	accounts, err := svc.ListLinkedAccounts(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != len(order) {
		t.Fatalf("expected %d accounts, got %d", len(order), len(accounts))
	}
	for index, provider := range order {
		if accounts[index].Provider != provider {
			t.Fatalf("expected %s at position %d, got %s", provider, index, accounts[index].Provider)
		}
	}

	empty, err := svc.ListLinkedAccounts(ctx, "usr_none")
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestUnlinkAccount_ConcurrentUnlinksKeepOneAccount(t *testing.T) {
	svc, accounts, _ := newLinkingService(t)
	ctx := context.Background()

	first, err := svc.LinkAccount(ctx, linkInput("usr_1", ProviderTikTok))
	if err != nil {
		t.Fatalf("link tiktok: %v", err)
	}
	second, err := svc.LinkAccount(ctx, linkInput("usr_1", ProviderGoogle))
	if err != nil {
		t.Fatalf("link google: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, accountID := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, accountID string) {
			defer wg.Done()
			errs[i] = svc.UnlinkAccount(ctx, "usr_1", accountID)
		}(i, accountID)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assertTextCode(t, err, ErrorLastLinkedAccount)
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one unlink to be refused, got %v", errs)
	}
	remaining, err := accounts.ListByUser(ctx, "usr_1")
	if err != nil || len(remaining) != 1 {
		t.Fatalf("expected one remaining account, got %d err=%v", len(remaining), err)
	}
}
