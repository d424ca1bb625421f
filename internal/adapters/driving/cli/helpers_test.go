//nolint:noctx // Test browsers use http.Get for convenience
package cli

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	configmemory "github.com/custodia-labs/suitelink/internal/adapters/driven/config/memory"
	driventoken "github.com/custodia-labs/suitelink/internal/adapters/driven/oauth"
	"github.com/custodia-labs/suitelink/internal/adapters/driven/vault/memory"
	"github.com/custodia-labs/suitelink/internal/core/services"
	"github.com/custodia-labs/suitelink/internal/testutil/fakeprovider"
)

// testEnv is a CLI wired to a fake provider with an in-memory vault.
type testEnv struct {
	provider *fakeprovider.Provider
	flow     *services.FlowController
	vault    *memory.Vault
	store    *services.CredentialStore
}

func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	p := fakeprovider.New("C1", "S1")
	t.Cleanup(p.Close)

	endpoint := driventoken.NewClient(driventoken.WithHTTPClient(p.Server.Client()))
	vault := memory.NewVault()
	store := services.NewCredentialStore(vault, "netsuite")
	endpoints := p.Endpoints()
	tokens := services.NewTokenManager(endpoints, store, endpoint)
	flow := services.NewFlowController(endpoints, store, tokens, endpoint)
	api := services.NewAPIClient(endpoints, store, tokens, services.WithAPIHTTPClient(p.Server.Client()))

	SetServices(Services{
		Auth:      flow,
		Resources: api,
		Records:   services.NewRecordService(api, endpoints, store, nil),
		Settings:  services.NewSettingsService(configmemory.NewConfigStore(nil)),
		Browser:   nil,
	})
	t.Cleanup(func() { SetServices(Services{}) })

	return &testEnv{provider: p, flow: flow, vault: vault, store: store}
}

// login signs in through the manual paste path.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	e.configure(t, "app://callback")

	stdin := newRedirectInput()
	browser = stdin
	defer func() { browser = nil }()

	_, err := runCLI(t, stdin, "login", "--manual")
	require.NoError(t, err)
}

func (e *testEnv) configure(t *testing.T, redirectURI string) {
	t.Helper()
	_, err := runCLI(t, nil, "configure",
		"--client-id", "C1", "--client-secret", "S1", "--account-id", "A1", "--redirect-uri", redirectURI)
	require.NoError(t, err)
}

// runCLI executes the root command with args and returns its output.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	defer resetFlags()

	if stdin == nil {
		stdin = strings.NewReader("")
	}
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	verbose = false
	configureClientID, configureClientSecret, configureAccountID, configureRedirectURI = "", "", "", ""
	loginManual, loginNoBrowser, logoutReset = false, false, false
	getQuery = nil
	listLimit = 0
	listPageSize = services.DefaultPageSize
}

// redirectInput plays a user with a custom-scheme redirect: the browser
// stops at the provider's redirect and the user pastes its Location.
type redirectInput struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func newRedirectInput() *redirectInput {
	pr, pw := io.Pipe()
	return &redirectInput{pr: pr, pw: pw}
}

func (r *redirectInput) Open(u string) error {
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(u)
	if err != nil {
		return err
	}
	resp.Body.Close()
	location := resp.Header.Get("Location")
	if location == "" {
		return errors.New("provider did not redirect")
	}
	go func() {
		_, _ = io.WriteString(r.pw, location+"\n")
	}()
	return nil
}

func (r *redirectInput) Read(p []byte) (int, error) {
	return r.pr.Read(p)
}

// followingBrowser lets the provider redirect it, as a real browser would
// for a loopback redirect URI.
type followingBrowser struct{}

func (followingBrowser) Open(u string) error {
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// failingBrowser cannot open anything.
type failingBrowser struct{}

func (failingBrowser) Open(string) error { return errors.New("no display") }

func customers(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"id": string(rune('1' + i)), "companyName": "Company"}
	}
	return out
}
