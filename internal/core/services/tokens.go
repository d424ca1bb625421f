package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// Ensure TokenManager implements the interface.
var _ driven.TokenProvider = (*TokenManager)(nil)

// refreshObserver is told about network refreshes. The flow controller
// uses it to mirror them in the authentication state.
type refreshObserver interface {
	refreshStarted()
	refreshSucceeded(tokens domain.TokenSet)
	refreshFailed(err error)
	refreshDiscarded()
}

// TokenManager hands out valid access tokens and performs refreshes.
//
// At most one refresh is in flight per provider. Callers that arrive while
// a refresh is running wait for its result instead of starting another.
// The TokenManager is the only writer of token keys in the vault.
type TokenManager struct {
	endpoints domain.ProviderEndpoints
	store     *CredentialStore
	endpoint  driven.TokenEndpoint
	clock     clockwork.Clock

	group singleflight.Group

	// generation changes whenever the stored token set is replaced or
	// purged outside a refresh. A flight that started under an older
	// generation must not write its result.
	genMu      sync.Mutex
	generation uint64

	mu        sync.RWMutex
	observers []refreshObserver
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenClock overrides the clock used for expiry checks.
func WithTokenClock(clock clockwork.Clock) TokenOption {
	return func(m *TokenManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewTokenManager creates a token manager for one provider.
func NewTokenManager(
	endpoints domain.ProviderEndpoints,
	store *CredentialStore,
	endpoint driven.TokenEndpoint,
	opts ...TokenOption,
) *TokenManager {
	m := &TokenManager{
		endpoints: endpoints,
		store:     store,
		endpoint:  endpoint,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *TokenManager) addObserver(o refreshObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *TokenManager) notify(fn func(refreshObserver)) {
	m.mu.RLock()
	observers := append([]refreshObserver(nil), m.observers...)
	m.mu.RUnlock()
	for _, o := range observers {
		fn(o)
	}
}

// EnsureValidAccessToken returns a usable access token, refreshing first
// when the stored one has expired.
func (m *TokenManager) EnsureValidAccessToken(ctx context.Context) (string, error) {
	tokens, ok, err := m.store.LoadTokens(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrNotAuthenticated
	}
	if tokens.IsValid(m.clock.Now()) {
		return tokens.AccessToken, nil
	}
	return m.refresh(ctx, "")
}

// ForceRefresh refreshes because the server rejected the access token
// rejected. If the stored token already differs from rejected, another
// caller has refreshed in the meantime and the stored token is returned.
func (m *TokenManager) ForceRefresh(ctx context.Context, rejected string) (string, error) {
	return m.refresh(ctx, rejected)
}

// refresh joins or starts the provider's single flight. The flight runs
// detached from the caller so one cancelled caller does not fail the others;
// each caller still stops waiting when its own context ends.
//
// A forced refresh may join a flight that did not know about the rejected
// token and hand it straight back. In that case one more flight is started.
func (m *TokenManager) refresh(ctx context.Context, rejected string) (string, error) {
	token, err := m.awaitFlight(ctx, rejected)
	if err == nil && rejected != "" && token == rejected {
		logger.Debug("joined refresh for %s returned the rejected token, refreshing again", m.endpoints.Name)
		token, err = m.awaitFlight(ctx, rejected)
	}
	return token, err
}

func (m *TokenManager) awaitFlight(ctx context.Context, rejected string) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(m.flightKey(), func() (any, error) {
		return m.doRefresh(flightCtx, rejected)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *TokenManager) flightKey() string {
	return "refresh:" + m.endpoints.Name
}

func (m *TokenManager) doRefresh(ctx context.Context, rejected string) (string, error) {
	gen := m.currentGeneration()

	// Re-read inside the flight: a flight that finished just before this
	// one started may already have stored a fresh token.
	tokens, ok, err := m.store.LoadTokens(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		// Logged out or purged while the caller was waiting.
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrNotAuthenticated)
	}
	if tokens.IsValid(m.clock.Now()) && (rejected == "" || tokens.AccessToken != rejected) {
		logger.Debug("token for %s already refreshed, skipping", m.endpoints.Name)
		return tokens.AccessToken, nil
	}

	if !tokens.HasRefreshToken() {
		return "", m.fail(ctx, gen, domain.ErrNoRefreshToken)
	}

	cfg, err := m.store.LoadConfiguration(ctx)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(nil); err != nil {
		return "", err
	}
	resolved, err := m.endpoints.Resolve(cfg.AccountID)
	if err != nil {
		return "", err
	}

	logger.Debug("refreshing access token for %s", m.endpoints.Name)
	m.notify(func(o refreshObserver) { o.refreshStarted() })

	fresh, err := m.endpoint.Refresh(ctx, driven.RefreshExchange{
		TokenURL:     resolved.TokenURL,
		Client:       driven.ClientCredentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrTokenRefreshFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrTokenRefreshFailed, err)
		}
		return "", m.fail(ctx, gen, err)
	}

	// Providers that do not rotate refresh tokens omit them from the response.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tokens.RefreshToken
	}

	saved, err := m.saveIfCurrent(ctx, gen, fresh)
	if err != nil {
		m.notify(func(o refreshObserver) { o.refreshFailed(err) })
		return "", err
	}
	if !saved {
		logger.Debug("tokens for %s were purged during the refresh, discarding the result", m.endpoints.Name)
		m.notify(func(o refreshObserver) { o.refreshDiscarded() })
		return "", errPurgedDuringRefresh()
	}

	logger.Debug("access token for %s refreshed, expires %s", m.endpoints.Name, fresh.ExpiresAt.Format("15:04:05"))
	m.notify(func(o refreshObserver) { o.refreshSucceeded(fresh) })
	return fresh.AccessToken, nil
}

// fail purges the unusable tokens and reports an authentication failure.
// When the tokens were already replaced or purged since the flight began,
// the failure belongs to a session that no longer exists and is not reported.
func (m *TokenManager) fail(ctx context.Context, gen uint64, cause error) error {
	m.genMu.Lock()
	if m.generation != gen {
		m.genMu.Unlock()
		m.notify(func(o refreshObserver) { o.refreshDiscarded() })
		return errPurgedDuringRefresh()
	}
	logger.Warn("token refresh for %s failed: %v", m.endpoints.Name, cause)

	err := fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, cause)
	if purgeErr := m.store.PurgeTokens(ctx); purgeErr != nil {
		err = errors.Join(err, purgeErr)
	}
	m.genMu.Unlock()

	m.notify(func(o refreshObserver) { o.refreshFailed(err) })
	return err
}

func (m *TokenManager) currentGeneration() uint64 {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	return m.generation
}

// saveIfCurrent stores fresh unless the generation moved on since gen.
func (m *TokenManager) saveIfCurrent(ctx context.Context, gen uint64, fresh domain.TokenSet) (bool, error) {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	if m.generation != gen {
		return false, nil
	}
	return true, m.store.SaveTokens(ctx, fresh)
}

func errPurgedDuringRefresh() error {
	return fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrNotAuthenticated)
}

// Install stores a token set obtained by a code exchange. A refresh still
// running for the previous token set will not overwrite it.
func (m *TokenManager) Install(ctx context.Context, tokens domain.TokenSet) error {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	m.generation++
	return m.store.SaveTokens(ctx, tokens)
}

// Purge deletes the stored tokens. Idempotent. A refresh in flight
// discards its result instead of storing it.
func (m *TokenManager) Purge(ctx context.Context) error {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	m.generation++
	m.group.Forget(m.flightKey())
	return m.store.PurgeTokens(ctx)
}

// Snapshot returns the stored token set without refreshing.
func (m *TokenManager) Snapshot(ctx context.Context) (domain.TokenSet, bool, error) {
	return m.store.LoadTokens(ctx)
}

// TokenSource adapts the manager to oauth2.TokenSource so it can back an
// oauth2.Transport.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managedTokenSource{ctx: ctx, manager: m}
}

type managedTokenSource struct {
	ctx     context.Context
	manager *TokenManager
}

func (s *managedTokenSource) Token() (*oauth2.Token, error) {
	access, err := s.manager.EnsureValidAccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if snap, ok, err := s.manager.Snapshot(s.ctx); err == nil && ok && snap.AccessToken == access {
		tok.Expiry = snap.ExpiresAt
	}
	return tok, nil
}
