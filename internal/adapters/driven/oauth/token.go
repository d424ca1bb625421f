// Package oauth provides the OAuth token endpoint client.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// DefaultTimeout bounds a single token endpoint round trip.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a token response is read.
const maxBodySize = 1 << 20

// Ensure Client implements the interface.
var _ driven.TokenEndpoint = (*Client)(nil)

// Client exchanges codes and refresh tokens at a token endpoint.
// Client credentials are sent with HTTP Basic authentication.
type Client struct {
	httpClient *http.Client
	clock      clockwork.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithClock overrides the clock used to stamp ExpiresAt.
func WithClock(clock clockwork.Clock) Option {
	return func(cl *Client) {
		if clock != nil {
			cl.clock = clock
		}
	}
}

// NewClient creates a token endpoint client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeCode redeems an authorization code together with its PKCE verifier.
func (c *Client) ExchangeCode(ctx context.Context, req driven.CodeExchange) (domain.TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", req.Code)
	data.Set("redirect_uri", req.RedirectURI)
	data.Set("code_verifier", req.CodeVerifier)

	tokens, err := c.post(ctx, req.TokenURL, req.Client, data)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("%w: %w", domain.ErrTokenExchangeFailed, err)
	}
	return tokens, nil
}

// Refresh redeems a refresh token.
func (c *Client) Refresh(ctx context.Context, req driven.RefreshExchange) (domain.TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", req.RefreshToken)

	tokens, err := c.post(ctx, req.TokenURL, req.Client, data)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("%w: %w", domain.ErrTokenRefreshFailed, err)
	}
	return tokens, nil
}

func (c *Client) post(
	ctx context.Context, tokenURL string, creds driven.ClientCredentials, data url.Values,
) (domain.TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	// NetSuite expects base64(client_id:client_secret) without form-escaping.
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)

	logger.Debug("token request: grant_type=%s url=%s client=%s",
		data.Get("grant_type"), tokenURL, logger.Mask(creds.ClientID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("read token response: %w", err)
	}
	receivedAt := c.clock.Now()

	if resp.StatusCode != http.StatusOK {
		return domain.TokenSet{}, errorFromResponse(resp.StatusCode, body)
	}

	return parseTokenResponse(body, receivedAt)
}

// errorFromResponse turns a non-200 response into an *OAuthError when the
// body follows RFC 6749 section 5.2, otherwise an *HTTPError.
func errorFromResponse(status int, body []byte) error {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		if code := parsed.Get("error").String(); code != "" {
			return &domain.OAuthError{
				Code:        code,
				Description: parsed.Get("error_description").String(),
				StatusCode:  status,
			}
		}
	}
	return &domain.HTTPError{
		Kind:       domain.ErrRequestFailed,
		StatusCode: status,
		Body:       body,
	}
}

// parseTokenResponse reads a successful token response. expires_in may be a
// JSON number or a numeric string; anything else is rejected.
func parseTokenResponse(body []byte, receivedAt time.Time) (domain.TokenSet, error) {
	invalid := func(err error) error {
		return &domain.HTTPError{Kind: domain.ErrInvalidResponse, StatusCode: http.StatusOK, Body: body, Err: err}
	}

	if !gjson.ValidBytes(body) {
		return domain.TokenSet{}, invalid(errors.New("token response is not JSON"))
	}
	parsed := gjson.ParseBytes(body)

	access := parsed.Get("access_token").String()
	if access == "" {
		return domain.TokenSet{}, invalid(errors.New("missing access_token"))
	}

	expiresIn, err := parseExpiresIn(parsed.Get("expires_in"))
	if err != nil {
		return domain.TokenSet{}, invalid(err)
	}

	tokenType := parsed.Get("token_type").String()
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return domain.NewTokenSet(access, parsed.Get("refresh_token").String(), tokenType, receivedAt, expiresIn), nil
}

func parseExpiresIn(v gjson.Result) (time.Duration, error) {
	var seconds int64
	switch v.Type {
	case gjson.Number:
		if v.Num != float64(int64(v.Num)) {
			return 0, fmt.Errorf("expires_in is not an integer: %s", v.Raw)
		}
		seconds = v.Int()
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expires_in is not numeric: %q", v.Str)
		}
		seconds = n
	case gjson.Null:
		if !v.Exists() {
			return 0, errors.New("missing expires_in")
		}
		return 0, errors.New("expires_in is null")
	default:
		return 0, fmt.Errorf("expires_in has unexpected type: %s", v.Raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("expires_in must be positive, got %d", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}
