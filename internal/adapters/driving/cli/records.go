package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/services"
)

var getCmd = &cobra.Command{
	Use:   "get [path]",
	Short: "GET a REST path and print the JSON body",
	Long: `GET a path relative to the account's REST base URL.

Examples:
  suitelink get /services/rest/record/v1/customer/42
  suitelink get /services/rest/record/v1/metadata-catalog -q select=customer`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var listCmd = &cobra.Command{
	Use:   "list [record-type]",
	Short: "List records of one type",
	Long: `List records page by page and print one JSON object per line.

Examples:
  suitelink list customer --limit 20
  suitelink list salesorder --page-size 500`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

var queryCmd = &cobra.Command{
	Use:   "query [suiteql]",
	Short: "Run a SuiteQL statement",
	Long: `Run a SuiteQL statement and print one JSON row per line.

Example:
  suitelink query "SELECT id, companyname FROM customer" --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var recordCmd = &cobra.Command{
	Use:   "record [record-type] [id]",
	Short: "Fetch one record by type and internal id",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecord,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that authenticated API calls succeed",
	RunE:  runPing,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Show stored configuration and token details",
	Long: `Show what is stored for the provider: client configuration with secrets
masked, resolved endpoint URLs, token presence and expiry, and which vault
keys exist. Nothing is sent to NetSuite.`,
	RunE: runDiagnose,
}

var (
	getQuery     []string
	listLimit    int
	listPageSize int
)

func init() {
	getCmd.Flags().StringArrayVarP(&getQuery, "query", "q", nil, "Query parameter as key=value (repeatable)")
	for _, c := range []*cobra.Command{listCmd, queryCmd} {
		c.Flags().IntVar(&listLimit, "limit", 0, "Stop after this many items (0 means all)")
		c.Flags().IntVar(&listPageSize, "page-size", services.DefaultPageSize, "Items requested per page")
	}
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(diagnoseCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	if resourceClient == nil {
		return errors.New("resource client not configured")
	}

	query, err := parseQueryFlags(getQuery)
	if err != nil {
		return err
	}
	body, err := resourceClient.Execute(commandContext(cmd), domain.GetResource(args[0], domain.WithQueryValues(query)))
	if err != nil {
		return err
	}

	cmd.Print(string(pretty.Pretty(body)))
	return nil
}

func parseQueryFlags(pairs []string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: query parameter %q is not key=value", domain.ErrInvalidInput, pair)
		}
		values.Add(key, value)
	}
	return values, nil
}

func runList(cmd *cobra.Command, args []string) error {
	if recordAPI == nil {
		return errors.New("record service not configured")
	}
	pager, err := recordAPI.List(args[0], listPageSize)
	if err != nil {
		return err
	}
	return printItems(cmd, pager)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if recordAPI == nil {
		return errors.New("record service not configured")
	}
	pager, err := recordAPI.Query(args[0], listPageSize)
	if err != nil {
		return err
	}
	return printItems(cmd, pager)
}

// printItems writes items as compact JSON lines until the pager is
// exhausted or the limit is reached.
func printItems(cmd *cobra.Command, pager *services.Pager) error {
	printed := 0
	for page, err := range pager.All(commandContext(cmd)) {
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			cmd.Println(string(pretty.Ugly(item)))
			printed++
			if listLimit > 0 && printed >= listLimit {
				return nil
			}
		}
	}
	if printed == 0 {
		cmd.Println("No items.")
	}
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordAPI == nil {
		return errors.New("record service not configured")
	}
	var record map[string]any
	if err := recordAPI.Get(commandContext(cmd), args[0], args[1], &record); err != nil {
		return err
	}
	return writeJSON(cmd, record)
}

func runPing(cmd *cobra.Command, _ []string) error {
	if recordAPI == nil {
		return errors.New("record service not configured")
	}
	if err := recordAPI.Ping(commandContext(cmd)); err != nil {
		return err
	}
	cmd.Println("Connection OK.")
	return nil
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	if recordAPI == nil {
		return errors.New("record service not configured")
	}
	d, err := recordAPI.Diagnose(commandContext(cmd))
	if err != nil {
		return err
	}

	cmd.Println("[Configuration]")
	cmd.Printf("  Provider: %s\n", d.Provider)
	cmd.Printf("  Complete: %t\n", d.Configured)
	if len(d.Missing) > 0 {
		cmd.Printf("  Missing: %s\n", strings.Join(d.Missing, ", "))
	}
	cmd.Printf("  Client ID: %s\n", orUnset(d.ClientID))
	cmd.Printf("  Client secret: %s\n", orUnset(d.ClientSecret))
	cmd.Printf("  Account ID: %s\n", orUnset(d.AccountID))
	cmd.Printf("  Redirect URI: %s\n", orUnset(d.RedirectURI))
	cmd.Println()

	cmd.Println("[Endpoints]")
	cmd.Printf("  Authorize: %s\n", orUnset(d.AuthorizeURL))
	cmd.Printf("  Token: %s\n", orUnset(d.TokenURL))
	cmd.Printf("  API base: %s\n", orUnset(d.APIBaseURL))
	cmd.Println()

	cmd.Println("[Tokens]")
	cmd.Printf("  Access token: %t\n", d.HasAccessToken)
	cmd.Printf("  Refresh token: %t\n", d.HasRefreshToken)
	if d.HasAccessToken {
		cmd.Printf("  Expires at: %s\n", d.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		cmd.Printf("  Expired: %t\n", d.Expired)
	}
	cmd.Println()

	cmd.Println("[Vault]")
	keys := make([]string, 0, len(d.VaultKeys))
	for k := range d.VaultKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		cmd.Printf("  %s: %s\n", k, presence(d.VaultKeys[k]))
	}
	return nil
}

// writeJSON prints v as indented JSON.
func writeJSON(cmd *cobra.Command, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cmd.Print(string(pretty.Pretty(b)))
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
