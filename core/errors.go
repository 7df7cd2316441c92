package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

var (
	ErrCredentialNotFound    = errors.New("core: credential not found")
	ErrUnknownProvider       = errors.New("core: unknown provider")
	ErrAccountNotFound       = errors.New("core: linked account not found")
	ErrAccountAlreadyLinked  = errors.New("core: account from this provider is already connected")
	ErrLastLinkedAccount     = errors.New("core: cannot remove the last connected account")
	ErrProviderNotConfigured = errors.New("core: refresh strategy not configured for provider")
)

const (
	ErrorBadInput             = "CREDENTIAL_BAD_INPUT"
	ErrorCredentialNotFound   = "CREDENTIAL_NOT_FOUND"
	ErrorRefreshPrecondition  = "CREDENTIAL_REFRESH_PRECONDITION"
	ErrorRefreshRejected      = "CREDENTIAL_REFRESH_REJECTED"
	ErrorStoreFailure         = "CREDENTIAL_STORE_FAILURE"
	ErrorUnknownProvider      = "CREDENTIAL_UNKNOWN_PROVIDER"
	ErrorAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrorAccountAlreadyLinked = "ACCOUNT_ALREADY_LINKED"
	ErrorLastLinkedAccount    = "ACCOUNT_LAST_LINKED"
	ErrorInternal             = "CREDENTIAL_INTERNAL_ERROR"
)

type RefreshFailureKind string

const (
	FailureLocalPrecondition RefreshFailureKind = "local_precondition"
	FailureRemoteRejected    RefreshFailureKind = "remote_rejected"
	FailureStore             RefreshFailureKind = "store_failure"
	FailureUnknownProvider   RefreshFailureKind = "unknown_provider"
)

// RefreshError is the typed failure of a refresh attempt. The kind is kept
// even though callers of GetValidAccessToken only see "no valid token".
type RefreshError struct {
	Kind      RefreshFailureKind
	Provider  ProviderKind
	AccountID string
	Message   string
	Cause     error
}

func (e *RefreshError) Error() string {
	if e == nil {
		return "core: refresh failed"
	}
	parts := []string{"core: refresh failed"}
	if e.Kind != "" {
		parts = append(parts, string(e.Kind))
	}
	if e.Provider != "" {
		parts = append(parts, "provider="+string(e.Provider))
	}
	if strings.TrimSpace(e.AccountID) != "" {
		parts = append(parts, "account="+strings.TrimSpace(e.AccountID))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, strings.TrimSpace(e.Message))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *RefreshError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable is true only for remote rejections; a missing precondition
// needs the user to link the account again.
func (e *RefreshError) IsRetryable() bool {
	return e != nil && e.Kind == FailureRemoteRejected
}

func NewPreconditionError(provider ProviderKind, message string) *RefreshError {
	return &RefreshError{
		Kind:     FailureLocalPrecondition,
		Provider: provider,
		Message:  message,
	}
}

func NewRemoteRejectedError(provider ProviderKind, cause error) *RefreshError {
	return &RefreshError{
		Kind:     FailureRemoteRejected,
		Provider: provider,
		Message:  "provider rejected refresh",
		Cause:    cause,
	}
}

// AsRefreshError extracts a RefreshError. Untyped strategy errors are treated
// as remote rejections.
func AsRefreshError(err error, provider ProviderKind) *RefreshError {
	if err == nil {
		return nil
	}
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		if refreshErr.Provider == "" {
			refreshErr.Provider = provider
		}
		return refreshErr
	}
	return NewRemoteRejectedError(provider, err)
}

func IsLocalPrecondition(err error) bool {
	var refreshErr *RefreshError
	return errors.As(err, &refreshErr) && refreshErr.Kind == FailureLocalPrecondition
}

func IsRemoteRejected(err error) bool {
	var refreshErr *RefreshError
	return errors.As(err, &refreshErr) && refreshErr.Kind == FailureRemoteRejected
}

func credentialErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		return newCredentialError(err, refreshCategory(refreshErr.Kind), refreshTextCode(refreshErr.Kind)).
			WithMetadata(map[string]any{
				"failure_kind": string(refreshErr.Kind),
				"provider":     string(refreshErr.Provider),
			})
	}

	switch {
	case errors.Is(err, ErrCredentialNotFound):
		return newCredentialError(err, goerrors.CategoryNotFound, ErrorCredentialNotFound)
	case errors.Is(err, ErrAccountNotFound):
		return newCredentialError(err, goerrors.CategoryNotFound, ErrorAccountNotFound)
	case errors.Is(err, ErrUnknownProvider):
		return newCredentialError(err, goerrors.CategoryValidation, ErrorUnknownProvider)
	case errors.Is(err, ErrAccountAlreadyLinked):
		return newCredentialError(err, goerrors.CategoryConflict, ErrorAccountAlreadyLinked)
	case errors.Is(err, ErrLastLinkedAccount):
		return newCredentialError(err, goerrors.CategoryConflict, ErrorLastLinkedAccount)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newCredentialError(err, goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	if mapped != nil && mapped.Category == goerrors.CategoryInternal && mapped.TextCode == goerrorsInternalTextCode {
		mapped.TextCode = ErrorInternal
	}
	return ensureErrorEnvelope(mapped)
}

// goerrorsInternalTextCode is the text code MapToError assigns to errors no
// mapper recognized.
const goerrorsInternalTextCode = "INTERNAL_ERROR"

func refreshCategory(kind RefreshFailureKind) goerrors.Category {
	switch kind {
	case FailureLocalPrecondition:
		return goerrors.CategoryAuth
	case FailureRemoteRejected:
		return goerrors.CategoryExternal
	case FailureUnknownProvider:
		return goerrors.CategoryValidation
	default:
		return goerrors.CategoryInternal
	}
}

func refreshTextCode(kind RefreshFailureKind) string {
	switch kind {
	case FailureLocalPrecondition:
		return ErrorRefreshPrecondition
	case FailureRemoteRejected:
		return ErrorRefreshRejected
	case FailureUnknownProvider:
		return ErrorUnknownProvider
	case FailureStore:
		return ErrorStoreFailure
	default:
		return ErrorInternal
	}
}

func newCredentialError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorCredentialNotFound
	case goerrors.CategoryAuth:
		return ErrorRefreshPrecondition
	case goerrors.CategoryExternal:
		return ErrorRefreshRejected
	default:
		return ErrorInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return fmt.Errorf("core: build service: %w", err)
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
