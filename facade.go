package credentials

import (
	"fmt"

	credentialcommand "github.com/goliatone/go-credentials/command"
	credentialquery "github.com/goliatone/go-credentials/query"
)

// CommandQueryService is the surface the facade's handlers are built on.
// *Service satisfies it.
type CommandQueryService interface {
	credentialcommand.TokenService
	credentialcommand.AccountService
	credentialquery.AccessTokenReader
	credentialquery.LinkedAccountReader
}

type Commands struct {
	EnsureFresh   *credentialcommand.EnsureFreshCommand
	LinkAccount   *credentialcommand.LinkAccountCommand
	UnlinkAccount *credentialcommand.UnlinkAccountCommand
}

type Queries struct {
	GetValidAccessToken *credentialquery.GetValidAccessTokenQuery
	ListLinkedAccounts  *credentialquery.ListLinkedAccountsQuery
	CanLinkAccount      *credentialquery.CanLinkAccountQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("credentials: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			EnsureFresh:   credentialcommand.NewEnsureFreshCommand(service),
			LinkAccount:   credentialcommand.NewLinkAccountCommand(service),
			UnlinkAccount: credentialcommand.NewUnlinkAccountCommand(service),
		},
		queries: Queries{
			GetValidAccessToken: credentialquery.NewGetValidAccessTokenQuery(service),
			ListLinkedAccounts:  credentialquery.NewListLinkedAccountsQuery(service),
			CanLinkAccount:      credentialquery.NewCanLinkAccountQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
