package domain

// VaultKeys is the key namespace of one provider in the credential vault.
// Each key is independently readable and writable.
type VaultKeys struct {
	ClientID     string
	ClientSecret string
	AccountID    string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
	TokenExpiry  string
}

// KeysFor returns the namespace for a provider, e.g. netsuite_client_id.
func KeysFor(provider string) VaultKeys {
	p := provider + "_"
	return VaultKeys{
		ClientID:     p + "client_id",
		ClientSecret: p + "client_secret",
		AccountID:    p + "account_id",
		RedirectURI:  p + "redirect_uri",
		AccessToken:  p + "access_token",
		RefreshToken: p + "refresh_token",
		TokenExpiry:  p + "token_expiry",
	}
}

// Configuration returns the client configuration keys.
func (k VaultKeys) Configuration() []string {
	return []string{k.ClientID, k.ClientSecret, k.AccountID, k.RedirectURI}
}

// Tokens returns the token set keys.
func (k VaultKeys) Tokens() []string {
	return []string{k.AccessToken, k.RefreshToken, k.TokenExpiry}
}

// All returns every key of the namespace.
func (k VaultKeys) All() []string {
	return append(k.Configuration(), k.Tokens()...)
}
