package sqlstore

import (
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/uptrace/bun"
)

// linkedAccountRecord is one row of linked_accounts. expires_at is stored as
// unix seconds; tokens are stored sealed when a sealer is configured.
type linkedAccountRecord struct {
	bun.BaseModel `bun:"table:linked_accounts,alias:la"`

	ID                string         `bun:"id,pk"`
	UserID            string         `bun:"user_id,notnull"`
	Provider          string         `bun:"provider,notnull"`
	ProviderAccountID string         `bun:"provider_account_id,notnull"`
	AccessToken       string         `bun:"access_token,notnull"`
	RefreshToken      *string        `bun:"refresh_token"`
	ExpiresAt         *int64         `bun:"expires_at"`
	Profile           map[string]any `bun:"profile,type:jsonb,notnull"`
	LastSyncedAt      *time.Time     `bun:"last_synced_at,nullzero"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *linkedAccountRecord) toAccount() core.LinkedAccount {
	if r == nil {
		return core.LinkedAccount{}
	}
	profile := copyAnyMap(r.Profile)
	return core.LinkedAccount{
		ID:                r.ID,
		UserID:            r.UserID,
		Provider:          core.ProviderKind(r.Provider),
		ProviderAccountID: r.ProviderAccountID,
		Profile:           profile,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		LastSyncedAt:      cloneTimePointer(r.LastSyncedAt),
	}
}

func epochSeconds(value *time.Time) *int64 {
	if value == nil {
		return nil
	}
	seconds := value.UTC().Unix()
	return &seconds
}

func fromEpochSeconds(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	converted := time.Unix(*value, 0).UTC()
	return &converted
}

func copyAnyMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(source))
	for key, value := range source {
		copied[key] = value
	}
	return copied
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneStringPointer(input *string) *string {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}
