package domain

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ClientConfiguration holds the OAuth application and account settings.
// All four fields must be non-empty before a flow can start.
type ClientConfiguration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AccountID    string `json:"account_id"`
	RedirectURI  string `json:"redirect_uri"`
}

// IsComplete reports whether every field is set.
func (c ClientConfiguration) IsComplete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.AccountID != "" && c.RedirectURI != ""
}

// MissingFields lists the names of empty fields.
func (c ClientConfiguration) MissingFields() []string {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.AccountID == "" {
		missing = append(missing, "account_id")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	return missing
}

// Validate checks completeness and that the redirect URI uses one of the
// registered schemes. An empty schemes list accepts any scheme.
func (c ClientConfiguration) Validate(schemes []string) error {
	if missing := c.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	u, err := url.Parse(c.RedirectURI)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: redirect uri %q is not absolute", ErrInvalidInput, c.RedirectURI)
	}
	if len(schemes) > 0 && !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: redirect uri scheme %q is not registered", ErrInvalidInput, u.Scheme)
	}
	return nil
}
