package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suitelink/internal/adapters/driven/vault/memory"
	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testConfig() domain.ClientConfiguration {
	return domain.ClientConfiguration{
		ClientID:     "C1",
		ClientSecret: "S1",
		AccountID:    "A1",
		RedirectURI:  "app://callback",
	}
}

func testEndpoints() domain.ProviderEndpoints {
	return domain.ProviderEndpoints{
		Name:            "netsuite",
		AuthorizeURL:    "https://{account}.auth.example.com/authorize",
		TokenURL:        "https://{account}.auth.example.com/token",
		APIBaseURL:      "https://{account}.api.example.com",
		Scope:           "restlets rest_webservices",
		RedirectSchemes: []string{"app", "http"},
	}
}

// fakeTokenEndpoint records grant requests and answers through hooks.
type fakeTokenEndpoint struct {
	mu           sync.Mutex
	lastExchange driven.CodeExchange
	lastRefresh  driven.RefreshExchange

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32

	exchangeFn func(driven.CodeExchange) (domain.TokenSet, error)
	refreshFn  func(driven.RefreshExchange) (domain.TokenSet, error)
}

func (f *fakeTokenEndpoint) ExchangeCode(_ context.Context, req driven.CodeExchange) (domain.TokenSet, error) {
	f.exchangeCalls.Add(1)
	f.mu.Lock()
	f.lastExchange = req
	fn := f.exchangeFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeTokenEndpoint) Refresh(_ context.Context, req driven.RefreshExchange) (domain.TokenSet, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	f.lastRefresh = req
	fn := f.refreshFn
	f.mu.Unlock()
	return fn(req)
}

// recordingObserver collects refresh notifications.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) refreshStarted()                  { o.add("started") }
func (o *recordingObserver) refreshSucceeded(domain.TokenSet) { o.add("succeeded") }
func (o *recordingObserver) refreshFailed(error)              { o.add("failed") }
func (o *recordingObserver) refreshDiscarded()                { o.add("discarded") }

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// tokenFixture wires a TokenManager over a memory vault and a fake clock.
type tokenFixture struct {
	vault    *memory.Vault
	store    *CredentialStore
	endpoint *fakeTokenEndpoint
	clock    clockwork.FakeClock
	manager  *TokenManager
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	vault := memory.NewVault()
	store := NewCredentialStore(vault, "netsuite")
	clock := clockwork.NewFakeClockAt(testEpoch)
	endpoint := &fakeTokenEndpoint{
		refreshFn: func(driven.RefreshExchange) (domain.TokenSet, error) {
			return domain.NewTokenSet("AT2", "RT2", "Bearer", clock.Now(), time.Hour), nil
		},
	}

	require.NoError(t, store.SaveConfiguration(context.Background(), testConfig()))

	return &tokenFixture{
		vault:    vault,
		store:    store,
		endpoint: endpoint,
		clock:    clock,
		manager:  NewTokenManager(testEndpoints(), store, endpoint, WithTokenClock(clock)),
	}
}

func (f *tokenFixture) install(t *testing.T, access, refresh string, expiresIn time.Duration) {
	t.Helper()
	tokens := domain.NewTokenSet(access, refresh, "Bearer", f.clock.Now(), expiresIn)
	require.NoError(t, f.manager.Install(context.Background(), tokens))
}
