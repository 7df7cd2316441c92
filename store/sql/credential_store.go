package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

// CredentialStore reads and writes the token columns of linked_accounts.
type CredentialStore struct {
	db     *bun.DB
	repo   repository.Repository[*linkedAccountRecord]
	sealer core.TokenSealer
	clock  clockwork.Clock
}

func (s *CredentialStore) Load(ctx context.Context, accountID string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: account id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", accountID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, fmt.Errorf("%w: account %q", core.ErrCredentialNotFound, accountID)
	}
	record := records[0]

	accessToken, err := s.open(ctx, record.AccessToken)
	if err != nil {
		return core.Credential{}, fmt.Errorf("sqlstore: open access token: %w", err)
	}
	var refreshToken *string
	if record.RefreshToken != nil {
		opened, openErr := s.open(ctx, *record.RefreshToken)
		if openErr != nil {
			return core.Credential{}, fmt.Errorf("sqlstore: open refresh token: %w", openErr)
		}
		refreshToken = &opened
	}
	return core.Credential{
		AccountID:    record.ID,
		Provider:     core.ProviderKind(record.Provider),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    fromEpochSeconds(record.ExpiresAt),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}, nil
}

// Save applies a partial update in a single statement. Fields left nil in the
// update keep their stored value.
func (s *CredentialStore) Save(ctx context.Context, accountID string, update core.CredentialUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	if strings.TrimSpace(update.AccessToken) == "" {
		return fmt.Errorf("sqlstore: access token is required")
	}

	accessToken, err := s.seal(ctx, update.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlstore: seal access token: %w", err)
	}
	query := s.db.NewUpdate().
		Model((*linkedAccountRecord)(nil)).
		Set("access_token = ?", accessToken).
		Set("updated_at = ?", s.now())
	if update.RefreshToken != nil {
		refreshToken, sealErr := s.seal(ctx, *update.RefreshToken)
		if sealErr != nil {
			return fmt.Errorf("sqlstore: seal refresh token: %w", sealErr)
		}
		query = query.Set("refresh_token = ?", refreshToken)
	}
	if update.ExpiresAt != nil {
		query = query.Set("expires_at = ?", *epochSeconds(update.ExpiresAt))
	}

	result, err := query.Where("id = ?", accountID).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %q", core.ErrCredentialNotFound, accountID)
	}
	return nil
}

func (s *CredentialStore) seal(ctx context.Context, value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Seal(ctx, value)
}

func (s *CredentialStore) open(ctx context.Context, value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Open(ctx, value)
}

func (s *CredentialStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

