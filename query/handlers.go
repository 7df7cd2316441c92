package query

import (
	"context"

	"github.com/goliatone/go-credentials/core"
)

type AccessTokenReader interface {
	GetValidAccessToken(ctx context.Context, accountID string) (string, bool, error)
}

type LinkedAccountReader interface {
	ListLinkedAccounts(ctx context.Context, userID string) ([]core.LinkedAccount, error)
	CanLinkAccount(ctx context.Context, userID string, provider core.ProviderKind) (core.LinkEligibility, error)
}

type GetValidAccessTokenQuery struct {
	reader AccessTokenReader
}

func NewGetValidAccessTokenQuery(reader AccessTokenReader) *GetValidAccessTokenQuery {
	return &GetValidAccessTokenQuery{reader: reader}
}

func (q *GetValidAccessTokenQuery) Query(ctx context.Context, msg GetValidAccessTokenMessage) (AccessTokenResult, error) {
	if q == nil || q.reader == nil {
		return AccessTokenResult{}, queryDependencyError("query: access token reader is required")
	}
	token, ok, err := q.reader.GetValidAccessToken(ctx, msg.AccountID)
	if err != nil {
		return AccessTokenResult{}, err
	}
	return AccessTokenResult{AccountID: msg.AccountID, AccessToken: token, OK: ok}, nil
}

type ListLinkedAccountsQuery struct {
	reader LinkedAccountReader
}

func NewListLinkedAccountsQuery(reader LinkedAccountReader) *ListLinkedAccountsQuery {
	return &ListLinkedAccountsQuery{reader: reader}
}

func (q *ListLinkedAccountsQuery) Query(ctx context.Context, msg ListLinkedAccountsMessage) ([]core.LinkedAccount, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: linked account reader is required")
	}
	return q.reader.ListLinkedAccounts(ctx, msg.UserID)
}

type CanLinkAccountQuery struct {
	reader LinkedAccountReader
}

func NewCanLinkAccountQuery(reader LinkedAccountReader) *CanLinkAccountQuery {
	return &CanLinkAccountQuery{reader: reader}
}

func (q *CanLinkAccountQuery) Query(ctx context.Context, msg CanLinkAccountMessage) (core.LinkEligibility, error) {
	if q == nil || q.reader == nil {
		return core.LinkEligibility{}, queryDependencyError("query: linked account reader is required")
	}
	return q.reader.CanLinkAccount(ctx, msg.UserID, msg.Provider)
}
