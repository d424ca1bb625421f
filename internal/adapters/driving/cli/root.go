// Package cli provides the suitelink command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/core/ports/driving"
	"github.com/custodia-labs/suitelink/internal/core/services"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// RecordAPI is the record-level facade the commands drive.
type RecordAPI interface {
	List(recordType string, pageSize int) (*services.Pager, error)
	Get(ctx context.Context, recordType, id string, out any) error
	Query(q string, pageSize int) (*services.Pager, error)
	Ping(ctx context.Context) error
	Diagnose(ctx context.Context) (services.Diagnostics, error)
}

// Services holds everything the commands need. Wired by main.
type Services struct {
	Auth      driving.AuthService
	Resources driving.ResourceClient
	Records   RecordAPI
	Settings  driving.SettingsService
	Browser   driven.Browser
}

var (
	authService     driving.AuthService
	resourceClient  driving.ResourceClient
	recordAPI       RecordAPI
	settingsService driving.SettingsService
	browser         driven.Browser
)

// loginTimeout bounds the wait for the loopback redirect.
var loginTimeout = 5 * time.Minute

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "suitelink",
	Short: "NetSuite REST client with OAuth 2.0 PKCE login",
	Long: `suitelink signs in to NetSuite with the authorization code flow and PKCE,
keeps the tokens in a local vault and refreshes them on demand, and calls the
REST record and SuiteQL services.

Getting started:
  suitelink configure      # store client id, secret, account and redirect URI
  suitelink login          # open the browser and complete the sign-in
  suitelink ping           # check that API calls succeed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// SetServices installs the wired services.
func SetServices(s Services) {
	authService = s.Auth
	resourceClient = s.Resources
	recordAPI = s.Records
	settingsService = s.Settings
	browser = s.Browser
}

// Execute runs the root command and returns the process exit code.
// Errors are reported as user guidance followed by the underlying cause.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func reportError(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", domain.UserMessage(err))
	_, _ = fmt.Fprintf(w, "  cause: %v\n", err)
}

// commandContext returns the command's context, falling back to Background
// for commands run directly in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
