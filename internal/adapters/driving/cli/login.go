package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suitelink/internal/adapters/driving/oauth"
	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/logger"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the authorization code flow",
	Long: `Open the NetSuite consent page and complete the sign-in.

With an http://localhost redirect URI a local server receives the redirect.
With --manual, or for any other redirect URI, paste the URL the browser was
redirected to. The login must finish in the same run: the PKCE verifier is
never written to disk.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard stored tokens",
	Long: `Discard the stored access and refresh tokens. With --reset the client
configuration is removed as well.`,
	RunE: runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and sign-in status",
	RunE:  runStatus,
}

var (
	loginManual    bool
	loginNoBrowser bool
	logoutReset    bool
)

func init() {
	loginCmd.Flags().BoolVar(&loginManual, "manual", false, "Paste the redirect URL instead of running a local server")
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL without opening it")
	logoutCmd.Flags().BoolVar(&logoutReset, "reset", false, "Also remove the client configuration")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if authService == nil {
		return errors.New("auth service not configured")
	}
	ctx := commandContext(cmd)

	cfg, err := authService.Configuration(ctx)
	if err != nil {
		return err
	}
	if !cfg.IsComplete() {
		return fmt.Errorf("%w: run 'suitelink configure' first", domain.ErrNotConfigured)
	}

	manual := loginManual
	var server *oauth.CallbackServer
	if !manual {
		server, err = oauth.NewCallbackServer(cfg.RedirectURI)
		if err != nil {
			logger.Debug("no loopback server: %v", err)
			cmd.Println("The redirect URI is not a local http address; paste the redirect URL when prompted.")
			manual = true
		}
	}
	if server != nil {
		if err := server.Start(); err != nil {
			return err
		}
		defer func() { _ = server.Stop() }()
	}

	authURL, err := authService.StartFlow(ctx)
	if err != nil {
		return err
	}
	if authURL == "" {
		cmd.Println("Already signed in.")
		return nil
	}

	cmd.Println("Open this URL to authorize suitelink:")
	cmd.Printf("\n  %s\n\n", authURL)
	openBrowser(cmd, authURL)

	var callback string
	if manual {
		cmd.Println("After approving, paste the full URL you were redirected to.")
		callback, err = newPrompter(cmd).ask("Redirect URL", "")
	} else {
		cmd.Println("Waiting for the redirect...")
		waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
		callback, err = server.WaitForCallback(waitCtx)
		cancel()
	}
	if err != nil {
		return err
	}

	if err := authService.HandleCallback(ctx, callback); err != nil {
		return err
	}
	cmd.Println("Signed in.")
	return nil
}

func openBrowser(cmd *cobra.Command, authURL string) {
	if loginNoBrowser || browser == nil {
		return
	}
	if err := browser.Open(authURL); err != nil {
		logger.Warn("could not open browser: %v", err)
		cmd.Println("Could not open a browser; open the URL above manually.")
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	if authService == nil {
		return errors.New("auth service not configured")
	}
	ctx := commandContext(cmd)

	if logoutReset {
		if err := authService.Reset(ctx); err != nil {
			return err
		}
		cmd.Println("Tokens and configuration removed.")
		return nil
	}

	if err := authService.Logout(ctx); err != nil {
		return err
	}
	cmd.Println("Signed out.")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if authService == nil {
		return errors.New("auth service not configured")
	}
	ctx := commandContext(cmd)

	cfg, err := authService.Configuration(ctx)
	if err != nil {
		return err
	}

	cmd.Println("[Client]")
	if cfg.IsComplete() {
		cmd.Printf("  Account: %s\n", cfg.AccountID)
		cmd.Printf("  Client ID: %s\n", logger.Mask(cfg.ClientID))
		cmd.Printf("  Redirect URI: %s\n", cfg.RedirectURI)
	} else {
		cmd.Printf("  Not configured (missing: %v)\n", cfg.MissingFields())
	}
	cmd.Println()

	cmd.Println("[Session]")
	state := authService.State()
	cmd.Printf("  State: %s\n", state.Kind)
	switch {
	case authService.IsAuthenticated(ctx):
		cmd.Println("  Signed in: yes")
	case state.Kind == domain.StateAuthenticated:
		cmd.Println("  Signed in: yes (access token expired, refreshed on next call)")
	default:
		cmd.Println("  Signed in: no")
	}
	if state.Reason != nil {
		cmd.Printf("  Last error: %v\n", state.Reason)
	}
	return nil
}
