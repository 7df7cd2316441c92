package sqlstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/goliatone/go-credentials/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// AccountStore manages linked_accounts rows for the linking rules.
type AccountStore struct {
	db          *bun.DB
	repo        repository.Repository[*linkedAccountRecord]
	credentials *CredentialStore
}

func (s *AccountStore) Create(ctx context.Context, in core.LinkAccountInput) (core.LinkedAccount, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: user id is required")
	}
	provider, err := core.ParseProviderKind(string(in.Provider))
	if err != nil {
		return core.LinkedAccount{}, err
	}
	if strings.TrimSpace(in.ProviderAccountID) == "" {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: provider account id is required")
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: access token is required")
	}

	accessToken, err := s.credentials.seal(ctx, in.AccessToken)
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: seal access token: %w", err)
	}
	var refreshToken *string
	if in.RefreshToken != nil {
		sealed, sealErr := s.credentials.seal(ctx, *in.RefreshToken)
		if sealErr != nil {
			return core.LinkedAccount{}, fmt.Errorf("sqlstore: seal refresh token: %w", sealErr)
		}
		refreshToken = &sealed
	}

	now := s.credentials.now()
	record := &linkedAccountRecord{
		ID:                uuid.NewString(),
		UserID:            userID,
		Provider:          string(provider),
		ProviderAccountID: strings.TrimSpace(in.ProviderAccountID),
		AccessToken:       accessToken,
		RefreshToken:      refreshToken,
		ExpiresAt:         epochSeconds(in.ExpiresAt),
		Profile:           copyAnyMap(in.Profile),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var created core.LinkedAccount
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, countErr := tx.NewSelect().
			Model((*linkedAccountRecord)(nil)).
			Where("user_id = ?", userID).
			Where("provider = ?", string(provider)).
			Count(ctx)
		if countErr != nil {
			return countErr
		}
		if existing > 0 {
			return fmt.Errorf("%w: user %q provider %q", core.ErrAccountAlreadyLinked, userID, provider)
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		created = inserted.toAccount()
		return nil
	})
	if err != nil {
		return core.LinkedAccount{}, err
	}
	return created, nil
}

func (s *AccountStore) Get(ctx context.Context, accountID string) (core.LinkedAccount, error) {
	if s == nil || s.repo == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(accountID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.LinkedAccount{}, err
	}
	if len(records) == 0 {
		return core.LinkedAccount{}, fmt.Errorf("%w: account %q", core.ErrAccountNotFound, accountID)
	}
	return records[0].toAccount(), nil
}

func (s *AccountStore) FindByUserAndProvider(
	ctx context.Context,
	userID string,
	provider core.ProviderKind,
) (core.LinkedAccount, bool, error) {
	if s == nil || s.repo == nil {
		return core.LinkedAccount{}, false, fmt.Errorf("sqlstore: account store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("provider", "=", string(provider)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.LinkedAccount{}, false, err
	}
	if len(records) == 0 {
		return core.LinkedAccount{}, false, nil
	}
	return records[0].toAccount(), true, nil
}

func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]core.LinkedAccount, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.LinkedAccount, 0, len(records))
	for _, record := range records {
		out = append(out, record.toAccount())
	}
	return out, nil
}

func (s *AccountStore) CountByUser(ctx context.Context, userID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.db.NewSelect().
		Model((*linkedAccountRecord)(nil)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Count(ctx)
}

// DeleteUnlessLast counts and deletes inside one transaction. On postgres the
// user's rows are locked first so concurrent unlinks serialize; sqlite
// serializes writers on its own.
func (s *AccountStore) DeleteUnlessLast(ctx context.Context, userID, accountID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	userID = strings.TrimSpace(userID)
	accountID = strings.TrimSpace(accountID)
	if userID == "" {
		return fmt.Errorf("sqlstore: user id is required")
	}
	if accountID == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var owned []string
		query := tx.NewSelect().
			Model((*linkedAccountRecord)(nil)).
			Column("id").
			Where("user_id = ?", userID)
		if tx.Dialect().Name() == dialect.PG {
			query = query.For("UPDATE")
		}
		if err := query.Scan(ctx, &owned); err != nil {
			return err
		}
		if !slices.Contains(owned, accountID) {
			return fmt.Errorf("%w: account %q", core.ErrAccountNotFound, accountID)
		}
		if len(owned) <= 1 {
			return fmt.Errorf("%w: user %q", core.ErrLastLinkedAccount, userID)
		}
		result, err := tx.NewDelete().
			Model((*linkedAccountRecord)(nil)).
			Where("id = ?", accountID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: account %q", core.ErrAccountNotFound, accountID)
		}
		return nil
	})
}
