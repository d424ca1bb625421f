package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/core/ports/driving"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// DefaultRequestTimeout bounds one HTTP round trip.
const DefaultRequestTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 32 << 20

// Ensure APIClient implements the interface.
var _ driving.ResourceClient = (*APIClient)(nil)

// Validator is implemented by response types that check their own invariants
// after decoding.
type Validator interface {
	Validate() error
}

// APIClient executes authenticated calls against the provider's REST API.
//
// Every call obtains a valid access token first. A 401 response triggers
// exactly one forced refresh and one retry of the identical request; a
// second 401 is returned as ErrUnauthorized. No other status is retried.
type APIClient struct {
	endpoints  domain.ProviderEndpoints
	store      *CredentialStore
	tokens     driven.TokenProvider
	httpClient *http.Client
	limiter    *RateLimiter
	userAgent  string
}

// APIOption configures an APIClient.
type APIOption func(*APIClient)

// WithAPIHTTPClient overrides the HTTP client.
func WithAPIHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithRateLimiter throttles requests through l.
func WithRateLimiter(l *RateLimiter) APIOption {
	return func(a *APIClient) {
		a.limiter = l
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) APIOption {
	return func(a *APIClient) {
		a.userAgent = ua
	}
}

// NewAPIClient creates a client for the provider's API.
func NewAPIClient(
	endpoints domain.ProviderEndpoints,
	store *CredentialStore,
	tokens driven.TokenProvider,
	opts ...APIOption,
) *APIClient {
	c := &APIClient{
		endpoints:  endpoints,
		store:      store,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		userAgent:  "suitelink",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs the call and returns the raw body of a 2xx response.
func (c *APIClient) Execute(ctx context.Context, res domain.ResourceDescriptor) ([]byte, error) {
	target, err := c.resolveURL(ctx, res)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, res, target, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		logger.Debug("%s %s returned 401, refreshing once", res.Method(), target)
		token, err = c.tokens.ForceRefresh(ctx, token)
		if err != nil {
			return nil, err
		}
		status, body, err = c.do(ctx, res, target, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &domain.HTTPError{
				Kind:       domain.ErrUnauthorized,
				Method:     res.Method(),
				URL:        target,
				StatusCode: status,
				Body:       body,
			}
		}
	}

	if status < 200 || status > 299 {
		return nil, &domain.HTTPError{
			Kind:       domain.ErrRequestFailed,
			Method:     res.Method(),
			URL:        target,
			StatusCode: status,
			Body:       body,
		}
	}
	return body, nil
}

// ExecuteInto performs the call and decodes the JSON body into out.
// Decode and validation failures carry the raw body.
func (c *APIClient) ExecuteInto(ctx context.Context, res domain.ResourceDescriptor, out any) error {
	body, err := c.Execute(ctx, res)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeInto(body, out)
}

// Fetch performs the call and decodes the body as a T. The zero T is
// returned on any failure.
func Fetch[T any](ctx context.Context, c driving.ResourceClient, res domain.ResourceDescriptor) (T, error) {
	var v T
	if err := c.ExecuteInto(ctx, res, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func decodeInto(body []byte, out any) error {
	invalid := func(err error) error {
		return &domain.HTTPError{Kind: domain.ErrInvalidResponse, Body: body, Err: err}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return invalid(errors.New("empty body"))
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(out); err != nil {
		return invalid(err)
	}
	if dec.More() {
		return invalid(errors.New("trailing data after JSON value"))
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return invalid(err)
		}
	}
	return nil
}

// do sends one attempt and returns the status and body.
func (c *APIClient) do(ctx context.Context, res domain.ResourceDescriptor, target, token string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reqBody io.Reader
	if res.HasBody() {
		reqBody = bytes.NewReader(res.Body())
	}
	req, err := http.NewRequestWithContext(ctx, res.Method(), target, reqBody)
	if err != nil {
		return 0, nil, &domain.HTTPError{Kind: domain.ErrRequestFailed, Method: res.Method(), URL: target, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if res.HasBody() {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range res.Headers() {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &domain.HTTPError{Kind: domain.ErrRequestFailed, Method: res.Method(), URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &domain.HTTPError{
			Kind: domain.ErrRequestFailed, Method: res.Method(), URL: target, StatusCode: resp.StatusCode, Err: err,
		}
	}

	logger.Debug("%s %s -> %d (%s)", res.Method(), target, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
		c.limiter.Backoff(parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}
	return resp.StatusCode, body, nil
}

// resolveURL joins the descriptor path onto the account's API base URL.
// Absolute URLs are accepted only when they point at the API host.
func (c *APIClient) resolveURL(ctx context.Context, res domain.ResourceDescriptor) (string, error) {
	cfg, err := c.store.LoadConfiguration(ctx)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(nil); err != nil {
		return "", err
	}
	resolved, err := c.endpoints.Resolve(cfg.AccountID)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(resolved.APIBaseURL)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("%w: api base url %q", domain.ErrNotConfigured, resolved.APIBaseURL)
	}

	path := res.Path()
	var target *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		target, err = url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if !strings.EqualFold(target.Host, base.Host) || !strings.EqualFold(target.Scheme, base.Scheme) {
			return "", fmt.Errorf("%w: refusing to send credentials to %s", domain.ErrInvalidInput, target.Host)
		}
	} else {
		target, err = url.Parse(base.String() + "/" + strings.TrimLeft(path, "/"))
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
	}

	if extra := res.Query(); len(extra) > 0 {
		q := target.Query()
		for k, vs := range extra {
			q[k] = vs
		}
		target.RawQuery = q.Encode()
	}
	return target.String(), nil
}

// parseRetryAfter reads delay-seconds or an HTTP date. Zero means unknown.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.Sub(now)
	}
	return 0
}
