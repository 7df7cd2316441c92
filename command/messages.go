package command

import (
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeEnsureFresh   = "credentials.command.ensure_fresh"
	TypeLinkAccount   = "credentials.command.account.link"
	TypeUnlinkAccount = "credentials.command.account.unlink"
)

// EnsureFreshMessage asks for the account's credential to be refreshed when
// it is stale. The resulting core.TokenOutcome is stored in the context
// result collector.
type EnsureFreshMessage struct {
	AccountID string
}

func (EnsureFreshMessage) Type() string { return TypeEnsureFresh }

func (m EnsureFreshMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return commandValidationError("account_id", "account id is required")
	}
	return nil
}

type LinkAccountMessage struct {
	Input core.LinkAccountInput
}

func (LinkAccountMessage) Type() string { return TypeLinkAccount }

func (m LinkAccountMessage) Validate() error {
	if strings.TrimSpace(m.Input.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if _, err := core.ParseProviderKind(string(m.Input.Provider)); err != nil {
		return commandWrapValidation(err, "command: invalid provider")
	}
	if strings.TrimSpace(m.Input.ProviderAccountID) == "" {
		return commandValidationError("provider_account_id", "provider account id is required")
	}
	if strings.TrimSpace(m.Input.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	return nil
}

type UnlinkAccountMessage struct {
	UserID    string
	AccountID string
}

func (UnlinkAccountMessage) Type() string { return TypeUnlinkAccount }

func (m UnlinkAccountMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if strings.TrimSpace(m.AccountID) == "" {
		return commandValidationError("account_id", "account id is required")
	}
	return nil
}
