package query

import (
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeGetValidAccessToken = "credentials.query.access_token.get"
	TypeListLinkedAccounts  = "credentials.query.accounts.list"
	TypeCanLinkAccount      = "credentials.query.accounts.can_link"
)

type GetValidAccessTokenMessage struct {
	AccountID string
}

func (GetValidAccessTokenMessage) Type() string { return TypeGetValidAccessToken }

func (m GetValidAccessTokenMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required")
	}
	return nil
}

// AccessTokenResult carries the token-or-absent answer. OK is false when the
// account has to be linked again.
type AccessTokenResult struct {
	AccountID   string
	AccessToken string
	OK          bool
}

type ListLinkedAccountsMessage struct {
	UserID string
}

func (ListLinkedAccountsMessage) Type() string { return TypeListLinkedAccounts }

func (m ListLinkedAccountsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

type CanLinkAccountMessage struct {
	UserID   string
	Provider core.ProviderKind
}

func (CanLinkAccountMessage) Type() string { return TypeCanLinkAccount }

func (m CanLinkAccountMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	if _, err := core.ParseProviderKind(string(m.Provider)); err != nil {
		return queryWrapValidation(err, "query: invalid provider")
	}
	return nil
}
