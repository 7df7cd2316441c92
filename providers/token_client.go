package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout     = 10 * time.Second
	DefaultTokenTTL           = time.Hour
	DefaultLongLivedTokenTTL  = 5184000 * time.Second
	maxTokenResponseBodyBytes = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type BasicAuth struct {
	Username string
	Password string
}

// TokenRequest is a single call to a token endpoint. Form is sent as the
// request body for POST; Query is appended to the URL.
type TokenRequest struct {
	Method    string
	URL       string
	Form      url.Values
	Query     url.Values
	BasicAuth *BasicAuth
}

type TokenPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

type TokenClient struct {
	httpClient HTTPDoer
	timeout    time.Duration
}

func NewTokenClient(httpClient HTTPDoer, timeout time.Duration) *TokenClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TokenClient{httpClient: httpClient, timeout: timeout}
}

// Fetch performs the request and decodes the token payload. Every failure is
// reported as an *ExchangeError.
func (c *TokenClient) Fetch(ctx context.Context, req TokenRequest) (TokenPayload, error) {
	if c == nil || c.httpClient == nil {
		return TokenPayload{}, &ExchangeError{Message: "token client is not configured"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		return TokenPayload{}, &ExchangeError{Message: "token url is required"}
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	if len(req.Query) > 0 {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return TokenPayload{}, &ExchangeError{Message: "invalid token url", Cause: err}
		}
		query := parsed.Query()
		for key, values := range req.Query {
			for _, value := range values {
				query.Add(key, strings.TrimSpace(value))
			}
		}
		parsed.RawQuery = query.Encode()
		endpoint = parsed.String()
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if method != http.MethodGet && len(req.Form) > 0 {
		body = strings.NewReader(req.Form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		return TokenPayload{}, &ExchangeError{Message: "build token request", Cause: err}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return TokenPayload{}, &ExchangeError{Message: "token request failed", Cause: err}
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return TokenPayload{}, &ExchangeError{StatusCode: response.StatusCode, Message: "read token response", Cause: readErr}
	}
	if int64(len(raw)) > maxTokenResponseBodyBytes {
		return TokenPayload{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("token response exceeds %d bytes", maxTokenResponseBodyBytes),
		}
	}

	payload, parseErr := parseTokenPayload(raw, response.Header.Get("Content-Type"))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return TokenPayload{}, &ExchangeError{
			StatusCode: response.StatusCode,
			ErrorCode:  payload.ErrorCode,
			Message:    describeTokenError(payload),
		}
	}
	if parseErr != nil {
		return TokenPayload{}, &ExchangeError{StatusCode: response.StatusCode, Message: "decode token response", Cause: parseErr}
	}
	if payload.ErrorCode != "" {
		return TokenPayload{}, &ExchangeError{
			StatusCode: response.StatusCode,
			ErrorCode:  payload.ErrorCode,
			Message:    describeTokenError(payload),
		}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return TokenPayload{}, &ExchangeError{StatusCode: response.StatusCode, Message: "token response missing access token"}
	}
	return payload, nil
}

// ResolveExpiresAt converts a relative expires_in into an absolute instant.
// The fallback applies when the provider omits the value.
func ResolveExpiresAt(now time.Time, expiresIn int64, fallback time.Duration) *time.Time {
	ttl := fallback
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := now.UTC().Add(ttl)
	return &expiresAt
}

func describeTokenError(payload TokenPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (TokenPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (TokenPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return TokenPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return TokenPayload{}, err
	}
	payload := TokenPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}
	// Graph API errors are objects: {"error": {"message", "type", "code"}}.
	if nested, ok := decoded["error"].(map[string]any); ok {
		payload.ErrorCode = readAnyString(nested["type"])
		if code := readAnyString(nested["code"]); code != "" {
			payload.ErrorCode = strings.TrimSpace(payload.ErrorCode + " " + code)
		}
		if payload.ErrorCode == "" {
			payload.ErrorCode = "error"
		}
		if payload.ErrorDescription == "" {
			payload.ErrorDescription = readAnyString(nested["message"])
		}
	} else {
		payload.ErrorCode = readAnyString(decoded["error"])
	}
	return payload, nil
}

func parseTokenPayloadForm(body []byte) (TokenPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return TokenPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return TokenPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return TokenPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}
