package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
)

var (
	_ gocmd.Querier[GetValidAccessTokenMessage, AccessTokenResult]   = (*GetValidAccessTokenQuery)(nil)
	_ gocmd.Querier[ListLinkedAccountsMessage, []core.LinkedAccount] = (*ListLinkedAccountsQuery)(nil)
	_ gocmd.Querier[CanLinkAccountMessage, core.LinkEligibility]     = (*CanLinkAccountQuery)(nil)

	_ AccessTokenReader   = (*core.Service)(nil)
	_ LinkedAccountReader = (*core.Service)(nil)
)
