//nolint:noctx // Test file uses http.Get for convenience; context not required in tests
package oauth

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	driventoken "github.com/custodia-labs/suitelink/internal/adapters/driven/oauth"
	"github.com/custodia-labs/suitelink/internal/adapters/driven/vault/memory"
	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/services"
	"github.com/custodia-labs/suitelink/internal/testutil/fakeprovider"
)

func startServer(t *testing.T) *CallbackServer {
	t.Helper()
	port, err := FindAvailablePort(18080, 18180)
	require.NoError(t, err)

	server, err := NewCallbackServer(LoopbackRedirectURI(port))
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func waitFor(t *testing.T, server *CallbackServer) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := server.WaitForCallback(ctx)
	require.NoError(t, err)
	return got
}

func TestNewCallbackServer(t *testing.T) {
	server, err := NewCallbackServer("http://localhost:9090/callback")
	require.NoError(t, err)

	assert.Equal(t, 9090, server.Port())
	assert.Equal(t, "http://localhost:9090/callback", server.RedirectURI())
	assert.Nil(t, server.server)
}

func TestNewCallbackServer_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		redirectURI string
	}{
		{"custom scheme", "app://callback"},
		{"https", "https://localhost:9090/callback"},
		{"remote host", "http://example.com:9090/callback"},
		{"no port", "http://localhost/callback"},
		{"bad port", "http://localhost:99999/callback"},
		{"unparseable", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCallbackServer(tt.redirectURI)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestIsLoopbackHost(t *testing.T) {
	assert.True(t, IsLoopbackHost("localhost"))
	assert.True(t, IsLoopbackHost("LOCALHOST"))
	assert.True(t, IsLoopbackHost("127.0.0.1"))
	assert.True(t, IsLoopbackHost("::1"))
	assert.False(t, IsLoopbackHost("example.com"))
	assert.False(t, IsLoopbackHost("10.0.0.1"))
}

func TestCallbackServer_Start_PortInUse(t *testing.T) {
	first := startServer(t)

	second, err := NewCallbackServer(first.RedirectURI())
	require.NoError(t, err)
	err = second.Start()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.NoError(t, second.Stop())
}

func TestCallbackServer_Stop(t *testing.T) {
	server := startServer(t)

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
}

func TestCallbackServer_StopRightAfterStart(t *testing.T) {
	port, err := FindAvailablePort(18200, 18300)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		server, err := NewCallbackServer(LoopbackRedirectURI(port))
		require.NoError(t, err)
		require.NoError(t, server.Start())
		require.NoError(t, server.Stop())
	}

	// The port is free again once Stop returns.
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestCallbackServer_Stop_NotStarted(t *testing.T) {
	server, err := NewCallbackServer("http://localhost:9090/callback")
	require.NoError(t, err)

	require.NoError(t, server.Stop())
}

func TestCallbackServer_CapturesRedirect(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get(server.RedirectURI() + "?code=abc&state=xyz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Authorization received")

	assert.Equal(t, server.RedirectURI()+"?code=abc&state=xyz", waitFor(t, server))
}

func TestCallbackServer_ProviderError(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get(server.RedirectURI() + "?error=access_denied&error_description=%3Cb%3Eno%3C%2Fb%3E")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Contains(t, string(body), "Authorization was not granted")
	assert.Contains(t, string(body), "&lt;b&gt;no&lt;/b&gt;")
	assert.NotContains(t, string(body), "<b>no</b>")

	got := waitFor(t, server)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "access_denied", u.Query().Get("error"))
}

func TestCallbackServer_KeepsFirstRedirect(t *testing.T) {
	server := startServer(t)

	for _, code := range []string{"first", "second"} {
		resp, err := http.Get(server.RedirectURI() + "?code=" + code)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Contains(t, waitFor(t, server), "code=first")
}

func TestCallbackServer_WaitTimeout(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := server.WaitForCallback(ctx)

	assert.ErrorIs(t, err, ErrCallbackTimeout)
}

func TestCallbackServer_WaitCancelled(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := server.WaitForCallback(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort(18200, 18300)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 18200)
	assert.LessOrEqual(t, port, 18300)
}

func TestLoopbackRedirectURI(t *testing.T) {
	assert.Equal(t, "http://localhost:8765/callback", LoopbackRedirectURI(8765))
}

// followingBrowser plays the user: it opens the authorization URL and lets
// the provider redirect it to the loopback server.
type followingBrowser struct{}

func (b followingBrowser) Open(u string) error {
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func TestLoopbackLogin_EndToEnd(t *testing.T) {
	p := fakeprovider.New("C1", "S1")
	t.Cleanup(p.Close)

	ctx := context.Background()
	endpoint := driventoken.NewClient(driventoken.WithHTTPClient(p.Server.Client()))
	store := services.NewCredentialStore(memory.NewVault(), "netsuite")
	endpoints := p.Endpoints()
	tokens := services.NewTokenManager(endpoints, store, endpoint)
	flow := services.NewFlowController(endpoints, store, tokens, endpoint)

	port, err := FindAvailablePort(18400, 18500)
	require.NoError(t, err)
	require.NoError(t, flow.Configure(ctx, domain.ClientConfiguration{
		ClientID:     "C1",
		ClientSecret: "S1",
		AccountID:    "A1",
		RedirectURI:  LoopbackRedirectURI(port),
	}))

	server, err := NewCallbackServer(LoopbackRedirectURI(port))
	require.NoError(t, err)
	require.NoError(t, server.Start())
	defer server.Stop()

	authURL, err := flow.StartFlow(ctx)
	require.NoError(t, err)
	require.NoError(t, followingBrowser{}.Open(authURL))

	callback := waitFor(t, server)
	require.NoError(t, flow.HandleCallback(ctx, callback))

	assert.Equal(t, domain.StateAuthenticated, flow.State().Kind)
	assert.True(t, flow.IsAuthenticated(ctx))
}
