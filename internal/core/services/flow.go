package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/core/ports/driving"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// Ensure FlowController implements the interface.
var _ driving.AuthService = (*FlowController)(nil)

// FlowController runs the authorization-code-with-PKCE flow for one
// provider and owns its authentication state machine.
type FlowController struct {
	endpoints   domain.ProviderEndpoints
	store       *CredentialStore
	tokens      *TokenManager
	endpoint    driven.TokenEndpoint
	clock       clockwork.Clock
	strictState bool

	mu      sync.Mutex
	state   domain.AuthenticationState
	session *domain.PKCESession
	// expireFailure marks a Failed state left by a refresh; it is reported
	// once and then falls back to Unauthenticated.
	expireFailure bool

	subMu   sync.Mutex
	subs    map[int]chan domain.AuthenticationState
	nextSub int
}

// FlowOption configures a FlowController.
type FlowOption func(*FlowController)

// WithFlowClock overrides the clock.
func WithFlowClock(clock clockwork.Clock) FlowOption {
	return func(f *FlowController) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithStrictState rejects callbacks whose state is missing or does not
// match the session. Off by default: a mismatch is only logged.
func WithStrictState(strict bool) FlowOption {
	return func(f *FlowController) {
		f.strictState = strict
	}
}

// NewFlowController creates a flow controller in the Unauthenticated state.
// Call Restore to pick up tokens persisted by an earlier process.
func NewFlowController(
	endpoints domain.ProviderEndpoints,
	store *CredentialStore,
	tokens *TokenManager,
	endpoint driven.TokenEndpoint,
	opts ...FlowOption,
) *FlowController {
	f := &FlowController{
		endpoints: endpoints,
		store:     store,
		tokens:    tokens,
		endpoint:  endpoint,
		clock:     clockwork.NewRealClock(),
		state:     domain.Unauthenticated(),
		subs:      make(map[int]chan domain.AuthenticationState),
	}
	for _, opt := range opts {
		opt(f)
	}
	tokens.addObserver(f)
	return f
}

// Restore sets the state to Authenticated when the vault holds a token set.
// Expired tokens still count; the next request refreshes them.
func (f *FlowController) Restore(ctx context.Context) error {
	tokens, ok, err := f.tokens.Snapshot(ctx)
	if err != nil {
		return err
	}
	if ok {
		f.setState(domain.Authenticated(tokens))
	}
	return nil
}

// Configure validates and stores the client configuration. Tokens issued
// to a different client or account are purged.
func (f *FlowController) Configure(ctx context.Context, cfg domain.ClientConfiguration) error {
	cfg = domain.ClientConfiguration{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		AccountID:    strings.TrimSpace(cfg.AccountID),
		RedirectURI:  strings.TrimSpace(cfg.RedirectURI),
	}
	if err := cfg.Validate(f.endpoints.RedirectSchemes); err != nil {
		return err
	}

	previous, err := f.store.LoadConfiguration(ctx)
	if err != nil {
		return err
	}
	if err := f.store.SaveConfiguration(ctx, cfg); err != nil {
		return err
	}

	if previous.ClientID != "" && (previous.ClientID != cfg.ClientID || previous.AccountID != cfg.AccountID) {
		logger.Info("client or account changed, discarding tokens")
		if err := f.tokens.Purge(ctx); err != nil {
			return err
		}
		f.discardSession()
		f.setState(domain.Unauthenticated())
	}
	return nil
}

// Configuration returns the stored client configuration.
func (f *FlowController) Configuration(ctx context.Context) (domain.ClientConfiguration, error) {
	return f.store.LoadConfiguration(ctx)
}

// IsConfigured reports whether all four configuration fields are set.
func (f *FlowController) IsConfigured(ctx context.Context) bool {
	cfg, err := f.store.LoadConfiguration(ctx)
	return err == nil && cfg.IsComplete()
}

// IsAuthenticated reports whether the vault holds an unexpired token set.
func (f *FlowController) IsAuthenticated(ctx context.Context) bool {
	tokens, ok, err := f.tokens.Snapshot(ctx)
	return err == nil && ok && tokens.IsValid(f.clock.Now())
}

// StartFlow begins an authorization attempt and returns the URL the user
// must open. When already authenticated it returns an empty URL and keeps
// any existing session.
func (f *FlowController) StartFlow(ctx context.Context) (string, error) {
	if f.IsAuthenticated(ctx) {
		logger.Debug("already authenticated with %s, not starting a flow", f.endpoints.Name)
		if tokens, ok, err := f.tokens.Snapshot(ctx); err == nil && ok {
			f.setState(domain.Authenticated(tokens))
		}
		return "", nil
	}

	cfg, err := f.store.LoadConfiguration(ctx)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(f.endpoints.RedirectSchemes); err != nil {
		return "", err
	}
	resolved, err := f.endpoints.Resolve(cfg.AccountID)
	if err != nil {
		return "", err
	}

	session := newPKCESessionAt(f.clock.Now())
	authURL := authCodeURL(resolved, cfg, session)

	f.mu.Lock()
	f.session = &session
	f.mu.Unlock()
	f.setState(domain.AwaitingCallback(session))

	logger.Debug("authorization flow started for %s", f.endpoints.Name)
	return authURL, nil
}

// authCodeURL builds the authorization request with the PKCE parameters.
func authCodeURL(p domain.ProviderEndpoints, cfg domain.ClientConfiguration, s domain.PKCESession) string {
	conf := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthorizeURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		RedirectURL: cfg.RedirectURI,
		Scopes:      p.Scopes(),
	}
	return conf.AuthCodeURL(s.State,
		oauth2.SetAuthURLParam("code_challenge", s.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", domain.CodeChallengeMethod),
	)
}

// HandleCallback consumes the redirect URL of the current attempt and
// exchanges its code for tokens. The PKCE session is discarded whatever
// the outcome.
func (f *FlowController) HandleCallback(ctx context.Context, callbackURL string) error {
	f.mu.Lock()
	session := f.session
	f.session = nil
	f.mu.Unlock()

	if session == nil {
		return fmt.Errorf("%w: no authorization in progress", domain.ErrInvalidCallback)
	}

	cfg, err := f.store.LoadConfiguration(ctx)
	if err != nil {
		return f.failFlow(err)
	}
	if err := cfg.Validate(f.endpoints.RedirectSchemes); err != nil {
		return f.failFlow(err)
	}

	params, err := parseCallback(callbackURL, cfg.RedirectURI)
	if err != nil {
		return f.failFlow(err)
	}

	if params.err != nil {
		return f.failFlow(fmt.Errorf("%w: %w", domain.ErrInvalidCallback, params.err))
	}
	if params.code == "" {
		return f.failFlow(fmt.Errorf("%w: missing authorization code", domain.ErrInvalidCallback))
	}

	if err := f.checkState(params.state, session.State); err != nil {
		return f.failFlow(err)
	}

	resolved, err := f.endpoints.Resolve(cfg.AccountID)
	if err != nil {
		return f.failFlow(err)
	}

	tokens, err := f.endpoint.ExchangeCode(ctx, driven.CodeExchange{
		TokenURL:     resolved.TokenURL,
		Client:       driven.ClientCredentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
		Code:         params.code,
		RedirectURI:  cfg.RedirectURI,
		CodeVerifier: session.CodeVerifier,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrTokenExchangeFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrTokenExchangeFailed, err)
		}
		return f.failFlow(err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return f.failFlow(fmt.Errorf("%w: response is missing access or refresh token", domain.ErrTokenExchangeFailed))
	}

	if err := f.tokens.Install(ctx, tokens); err != nil {
		return f.failFlow(err)
	}

	f.setState(domain.Authenticated(tokens))
	logger.Info("authenticated with %s", f.endpoints.Name)
	return nil
}

func (f *FlowController) checkState(got, want string) error {
	if got == want {
		return nil
	}
	if f.strictState {
		return fmt.Errorf("%w: state mismatch", domain.ErrInvalidCallback)
	}
	if got == "" {
		logger.Warn("callback for %s carries no state parameter, continuing", f.endpoints.Name)
	} else {
		logger.Warn("callback state for %s does not match the session, continuing", f.endpoints.Name)
	}
	return nil
}

func (f *FlowController) failFlow(err error) error {
	logger.Warn("authorization with %s failed: %v", f.endpoints.Name, err)
	f.setState(domain.Failed(err))
	return err
}

// Logout clears the stored tokens and any pending session. Calling it
// while unauthenticated changes nothing.
func (f *FlowController) Logout(ctx context.Context) error {
	if err := f.tokens.Purge(ctx); err != nil {
		return err
	}
	f.discardSession()
	f.setState(domain.Unauthenticated())
	return nil
}

// Reset clears tokens and the client configuration.
func (f *FlowController) Reset(ctx context.Context) error {
	if err := f.tokens.Purge(ctx); err != nil {
		return err
	}
	if err := f.store.PurgeAll(ctx); err != nil {
		return err
	}
	f.discardSession()
	f.setState(domain.Unauthenticated())
	return nil
}

func (f *FlowController) discardSession() {
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
}

// State returns the current authentication state.
//
// A refresh failure is reported as Failed to the first caller that reads
// the state; later reads see Unauthenticated with the same Reason.
func (f *FlowController) State() domain.AuthenticationState {
	f.mu.Lock()
	current := f.state
	if !f.expireFailure {
		f.mu.Unlock()
		return current
	}
	next := domain.Unauthenticated()
	next.Reason = current.Reason
	f.state = next
	f.expireFailure = false
	f.mu.Unlock()

	f.publish(current, next)
	return current
}

// Subscribe returns a channel receiving every state transition. Slow
// subscribers miss transitions once their buffer is full.
func (f *FlowController) Subscribe(buffer int) (<-chan domain.AuthenticationState, func()) {
	ch := make(chan domain.AuthenticationState, max(buffer, 0))

	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	f.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.subMu.Lock()
			delete(f.subs, id)
			close(ch)
			f.subMu.Unlock()
		})
	}
}

// setState records a transition and publishes it. Setting the current
// kind again is not a transition, except for states that carry new data.
func (f *FlowController) setState(s domain.AuthenticationState) {
	f.transition(s, false)
}

func (f *FlowController) transition(s domain.AuthenticationState, expireFailure bool) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.expireFailure = expireFailure
	f.mu.Unlock()

	f.publish(prev, s)
}

func (f *FlowController) publish(prev, s domain.AuthenticationState) {
	if prev.Kind == s.Kind && (s.Kind == domain.StateUnauthenticated || s.Kind == domain.StateRefreshing) {
		return
	}
	logger.Debug("auth state %s -> %s", prev.Kind, s.Kind)

	f.subMu.Lock()
	defer f.subMu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (f *FlowController) refreshStarted() {
	f.setState(domain.Refreshing())
}

func (f *FlowController) refreshSucceeded(tokens domain.TokenSet) {
	f.setState(domain.Authenticated(tokens))
}

func (f *FlowController) refreshFailed(err error) {
	f.transition(domain.Failed(err), true)
}

// refreshDiscarded runs when a refresh finished after a logout. The logout
// already moved the state on unless the flight announced itself late.
func (f *FlowController) refreshDiscarded() {
	f.mu.Lock()
	refreshing := f.state.Kind == domain.StateRefreshing
	f.mu.Unlock()
	if refreshing {
		f.setState(domain.Unauthenticated())
	}
}

// callbackParams are the values read from a redirect.
type callbackParams struct {
	code  string
	state string
	err   *domain.OAuthError
}

// parseCallback validates the redirect against the configured redirect URI
// and reads its query. Scheme, host and path must match exactly.
//
// Some custom-scheme redirects carry query strings that net/url refuses to
// decode. For those, and only those, code and state are read from the raw
// query by splitting on '&'.
func parseCallback(raw, redirectURI string) (callbackParams, error) {
	got, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return callbackParams{}, fmt.Errorf("%w: malformed callback url: %w", domain.ErrInvalidCallback, err)
	}
	want, err := url.Parse(redirectURI)
	if err != nil {
		return callbackParams{}, fmt.Errorf("%w: malformed redirect uri: %w", domain.ErrInvalidCallback, err)
	}
	if !sameEndpoint(got, want) {
		return callbackParams{}, fmt.Errorf("%w: callback %s://%s does not match redirect uri %s://%s",
			domain.ErrInvalidCallback, got.Scheme, got.Host, want.Scheme, want.Host)
	}

	query, err := url.ParseQuery(got.RawQuery)
	if err != nil {
		logger.Debug("callback query not decodable, reading parameters from raw query")
		return callbackParams{
			code:  rawQueryParam(got.RawQuery, "code"),
			state: rawQueryParam(got.RawQuery, "state"),
		}, nil
	}

	p := callbackParams{code: query.Get("code"), state: query.Get("state")}
	if code := query.Get("error"); code != "" {
		p.err = &domain.OAuthError{Code: code, Description: query.Get("error_description")}
	}
	return p, nil
}

func sameEndpoint(got, want *url.URL) bool {
	return strings.EqualFold(got.Scheme, want.Scheme) &&
		strings.EqualFold(got.Host, want.Host) &&
		got.Opaque == want.Opaque &&
		strings.TrimSuffix(got.Path, "/") == strings.TrimSuffix(want.Path, "/")
}

// rawQueryParam returns the value of name in an undecodable query string,
// unescaped where possible and verbatim otherwise.
func rawQueryParam(rawQuery, name string) string {
	for _, pair := range strings.Split(rawQuery, "&") {
		value, ok := strings.CutPrefix(pair, name+"=")
		if !ok {
			continue
		}
		if unescaped, err := url.QueryUnescape(value); err == nil {
			return unescaped
		}
		return value
	}
	return ""
}
