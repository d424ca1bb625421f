package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suitelink/internal/adapters/driving/oauth"
	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/logger"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store the OAuth client and account settings",
	Long: `Store the integration record's client id and secret, the NetSuite account id
and the redirect URI registered on the integration.

Values not passed as flags are prompted for; the secret is read without echo.
Changing the client id or account id discards stored tokens.

Examples:
  suitelink configure
  suitelink configure --client-id abc --client-secret xyz \
    --account-id 1234567_SB1 --redirect-uri http://localhost:8765/callback`,
	RunE: runConfigure,
}

var (
	configureClientID     string
	configureClientSecret string
	configureAccountID    string
	configureRedirectURI  string
)

func init() {
	configureCmd.Flags().StringVar(&configureClientID, "client-id", "", "OAuth client id")
	configureCmd.Flags().StringVar(&configureClientSecret, "client-secret", "", "OAuth client secret")
	configureCmd.Flags().StringVar(&configureAccountID, "account-id", "", "NetSuite account id, e.g. 1234567_SB1")
	configureCmd.Flags().StringVar(&configureRedirectURI, "redirect-uri", "", "Registered redirect URI")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, _ []string) error {
	if authService == nil {
		return errors.New("auth service not configured")
	}
	ctx := commandContext(cmd)

	current, err := authService.Configuration(ctx)
	if err != nil {
		return err
	}

	cfg := domain.ClientConfiguration{
		ClientID:     configureClientID,
		ClientSecret: configureClientSecret,
		AccountID:    configureAccountID,
		RedirectURI:  configureRedirectURI,
	}

	if !cfg.IsComplete() {
		p := newPrompter(cmd)
		if cfg.ClientID == "" {
			if cfg.ClientID, err = p.ask("Client ID", current.ClientID); err != nil {
				return err
			}
		}
		if cfg.ClientSecret == "" {
			if cfg.ClientSecret, err = p.askSecret("Client secret", current.ClientSecret); err != nil {
				return err
			}
		}
		if cfg.AccountID == "" {
			if cfg.AccountID, err = p.ask("Account ID", current.AccountID); err != nil {
				return err
			}
		}
		if cfg.RedirectURI == "" {
			def := current.RedirectURI
			if def == "" {
				def = suggestedRedirectURI()
			}
			if cfg.RedirectURI, err = p.ask("Redirect URI", def); err != nil {
				return err
			}
		}
	}

	if err := authService.Configure(ctx, cfg); err != nil {
		return err
	}

	cmd.Printf("Configuration saved for account %s.\n", cfg.AccountID)
	cmd.Println("Run 'suitelink login' to sign in.")
	return nil
}

// suggestedRedirectURI offers a loopback redirect on the configured
// callback port, or the next free one above it.
func suggestedRedirectURI() string {
	port := domain.DefaultAppSettings().Callback.Port
	if settingsService != nil {
		if s, err := settingsService.Get(); err == nil {
			port = s.Callback.Port
		}
	}
	free, err := oauth.FindAvailablePort(port, port+100)
	if err != nil {
		logger.Debug("no free callback port near %d: %v", port, err)
		return oauth.LoopbackRedirectURI(port)
	}
	return oauth.LoopbackRedirectURI(free)
}
