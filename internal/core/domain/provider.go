package domain

import (
	"fmt"
	"strings"
)

// AccountPlaceholder is substituted with the account host label.
const AccountPlaceholder = "{account}"

// ProviderEndpoints parameterises the generic OAuth client for one vendor.
// URL fields may contain {account}.
type ProviderEndpoints struct {
	Name         string
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
	Scope        string
	// RedirectSchemes lists the registered redirect URI schemes.
	RedirectSchemes []string
}

// Resolve returns a copy with the account placeholder expanded.
func (p ProviderEndpoints) Resolve(accountID string) (ProviderEndpoints, error) {
	needsAccount := strings.Contains(p.AuthorizeURL+p.TokenURL+p.APIBaseURL, AccountPlaceholder)
	if needsAccount && accountID == "" {
		return ProviderEndpoints{}, fmt.Errorf("%w: account id required for %s", ErrNotConfigured, p.Name)
	}
	host := AccountHost(accountID)
	r := p
	r.AuthorizeURL = strings.ReplaceAll(p.AuthorizeURL, AccountPlaceholder, host)
	r.TokenURL = strings.ReplaceAll(p.TokenURL, AccountPlaceholder, host)
	r.APIBaseURL = strings.TrimRight(strings.ReplaceAll(p.APIBaseURL, AccountPlaceholder, host), "/")
	return r, nil
}

// Scopes splits the scope string.
func (p ProviderEndpoints) Scopes() []string {
	return strings.Fields(p.Scope)
}

// AccountHost turns an account id into its hostname label.
// Sandbox ids such as 1234567_SB1 become 1234567-sb1.
func AccountHost(accountID string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(accountID)), "_", "-")
}

// NetSuiteEndpoints is the preset for NetSuite REST web services.
func NetSuiteEndpoints() ProviderEndpoints {
	return ProviderEndpoints{
		Name:            "netsuite",
		AuthorizeURL:    "https://{account}.app.netsuite.com/app/login/oauth2/authorize.nl",
		TokenURL:        "https://{account}.suitetalk.api.netsuite.com/services/rest/auth/oauth2/v1/token",
		APIBaseURL:      "https://{account}.suitetalk.api.netsuite.com",
		Scope:           "restlets rest_webservices",
		RedirectSchemes: []string{"fieldpay", "app", "http", "https"},
	}
}

// ProviderPreset returns the endpoints registered under name.
func ProviderPreset(name string) (ProviderEndpoints, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "netsuite":
		return NetSuiteEndpoints(), true
	default:
		return ProviderEndpoints{}, false
	}
}
