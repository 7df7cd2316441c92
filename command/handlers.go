package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
)

type TokenService interface {
	EnsureFresh(ctx context.Context, accountID string) (core.TokenOutcome, error)
}

type AccountService interface {
	LinkAccount(ctx context.Context, input core.LinkAccountInput) (core.LinkedAccount, error)
	UnlinkAccount(ctx context.Context, userID string, accountID string) error
}

type EnsureFreshCommand struct {
	service TokenService
}

func NewEnsureFreshCommand(service TokenService) *EnsureFreshCommand {
	return &EnsureFreshCommand{service: service}
}

// Execute fails only on misuse or infrastructure faults. A refresh the
// provider rejected is reported through the stored outcome.
func (c *EnsureFreshCommand) Execute(ctx context.Context, msg EnsureFreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	out, err := c.service.EnsureFresh(ctx, msg.AccountID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LinkAccountCommand struct {
	service AccountService
}

func NewLinkAccountCommand(service AccountService) *LinkAccountCommand {
	return &LinkAccountCommand{service: service}
}

func (c *LinkAccountCommand) Execute(ctx context.Context, msg LinkAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	out, err := c.service.LinkAccount(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UnlinkAccountCommand struct {
	service AccountService
}

func NewUnlinkAccountCommand(service AccountService) *UnlinkAccountCommand {
	return &UnlinkAccountCommand{service: service}
}

func (c *UnlinkAccountCommand) Execute(ctx context.Context, msg UnlinkAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.UnlinkAccount(ctx, msg.UserID, msg.AccountID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
