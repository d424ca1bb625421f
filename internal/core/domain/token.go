package domain

import "time"

// TokenSet is the current OAuth token material.
// ExpiresAt is absolute and computed once, at the moment of receipt.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewTokenSet builds a TokenSet from a token endpoint response received at issuedAt.
func NewTokenSet(accessToken, refreshToken, tokenType string, issuedAt time.Time, expiresIn time.Duration) TokenSet {
	return TokenSet{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		ExpiresAt:    issuedAt.Add(expiresIn),
	}
}

// NeedsRefresh reports whether the access token is unusable at now.
// A token expiring exactly at now is already expired.
func (t TokenSet) NeedsRefresh(now time.Time) bool {
	return t.AccessToken == "" || !now.Before(t.ExpiresAt)
}

// IsValid reports whether the access token can be used at now.
func (t TokenSet) IsValid(now time.Time) bool {
	return !t.NeedsRefresh(now)
}

// HasRefreshToken returns true if a refresh token is available.
func (t TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != ""
}
