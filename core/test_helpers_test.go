package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type memoryCredentialStore struct {
	mu          sync.Mutex
	credentials map[string]Credential
	loads       int
	saves       int
	updates     []CredentialUpdate
	loadErr     error
	saveErr     error
	invalidated []string
}

func newMemoryCredentialStore(creds ...Credential) *memoryCredentialStore {
	store := &memoryCredentialStore{credentials: map[string]Credential{}}
	for _, cred := range creds {
		store.credentials[cred.AccountID] = cred
	}
	return store
}

func (s *memoryCredentialStore) Load(_ context.Context, accountID string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return Credential{}, s.loadErr
	}
	cred, ok := s.credentials[accountID]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	cred.RefreshToken = cloneStringPtr(cred.RefreshToken)
	cred.ExpiresAt = cloneTimePtr(cred.ExpiresAt)
	return cred, nil
}

func (s *memoryCredentialStore) Save(_ context.Context, accountID string, update CredentialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.updates = append(s.updates, update)
	if s.saveErr != nil {
		return s.saveErr
	}
	cred, ok := s.credentials[accountID]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.AccessToken = update.AccessToken
	if update.RefreshToken != nil {
		cred.RefreshToken = cloneStringPtr(update.RefreshToken)
	}
	if update.ExpiresAt != nil {
		cred.ExpiresAt = cloneTimePtr(update.ExpiresAt)
	}
	s.credentials[accountID] = cred
	return nil
}

func (s *memoryCredentialStore) Invalidate(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, accountID)
	return nil
}

func (s *memoryCredentialStore) get(accountID string) Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentials[accountID]
}

func (s *memoryCredentialStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type stubStrategy struct {
	mu       sync.Mutex
	provider ProviderKind
	result   RefreshResult
	err      error
	calls    int
	seen     []Credential
	block    chan struct{}
}

func (s *stubStrategy) Provider() ProviderKind { return s.provider }

func (s *stubStrategy) Refresh(_ context.Context, cred Credential) (RefreshResult, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, cred)
	if s.err != nil {
		return RefreshResult{}, s.err
	}
	return s.result, nil
}

func (s *stubStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memoryAccountStore struct {
	mu          sync.Mutex
	next        int
	accounts    map[string]LinkedAccount
	credentials *memoryCredentialStore
	clock       clockwork.Clock
	deleted     []string
}

func newMemoryAccountStore(credentials *memoryCredentialStore, clock clockwork.Clock) *memoryAccountStore {
	return &memoryAccountStore{
		accounts:    map[string]LinkedAccount{},
		credentials: credentials,
		clock:       clock,
	}
}

func (s *memoryAccountStore) Create(_ context.Context, input LinkAccountInput) (LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.UserID == input.UserID && existing.Provider == input.Provider {
			return LinkedAccount{}, ErrAccountAlreadyLinked
		}
	}
	s.next++
	now := s.clock.Now().UTC().Add(time.Duration(s.next) * time.Second)
	account := LinkedAccount{
		ID:                fmt.Sprintf("acct_%d", s.next),
		UserID:            input.UserID,
		Provider:          input.Provider,
		ProviderAccountID: input.ProviderAccountID,
		Profile:           cloneProfile(input.Profile),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.accounts[account.ID] = account
	if s.credentials != nil {
		s.credentials.mu.Lock()
		s.credentials.credentials[account.ID] = Credential{
			AccountID:    account.ID,
			Provider:     input.Provider,
			AccessToken:  input.AccessToken,
			RefreshToken: cloneStringPtr(input.RefreshToken),
			ExpiresAt:    cloneTimePtr(input.ExpiresAt),
			UpdatedAt:    now,
		}
		s.credentials.mu.Unlock()
	}
	return account, nil
}

func (s *memoryAccountStore) Get(_ context.Context, accountID string) (LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return LinkedAccount{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryAccountStore) FindByUserAndProvider(_ context.Context, userID string, provider ProviderKind) (LinkedAccount, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.UserID == userID && account.Provider == provider {
			return account, true, nil
		}
	}
	return LinkedAccount{}, false, nil
}

func (s *memoryAccountStore) ListByUser(_ context.Context, userID string) ([]LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []LinkedAccount{}
	for _, account := range s.accounts {
		if account.UserID == userID {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryAccountStore) CountByUser(ctx context.Context, userID string) (int, error) {
	accounts, err := s.ListByUser(ctx, userID)
	return len(accounts), err
}

func (s *memoryAccountStore) DeleteUnlessLast(_ context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	accountID = strings.TrimSpace(accountID)
	account, ok := s.accounts[accountID]
	if !ok || account.UserID != userID {
		return ErrAccountNotFound
	}
	owned := 0
	for _, candidate := range s.accounts {
		if candidate.UserID == userID {
			owned++
		}
	}
	if owned <= 1 {
		return ErrLastLinkedAccount
	}
	delete(s.accounts, accountID)
	s.deleted = append(s.deleted, accountID)
	return nil
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}

func newTestService(t interface{ Fatalf(string, ...any) }, store CredentialStore, opts ...Option) (*Service, clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testNow)
	base := []Option{
		WithClock(clock),
		WithCredentialStore(store),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, clock
}
