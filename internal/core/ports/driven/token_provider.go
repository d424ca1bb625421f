package driven

import "context"

// TokenProvider provides access tokens for authenticated API calls.
// Implementations handle refresh transparently and guarantee at most one
// refresh in flight at a time.
type TokenProvider interface {
	// EnsureValidAccessToken returns a usable access token, refreshing
	// first when the stored one has expired.
	EnsureValidAccessToken(ctx context.Context) (string, error)

	// ForceRefresh renews the token after the server rejected it.
	// If the stored token already differs from rejected, another caller
	// has refreshed in the meantime and that token is returned as is.
	ForceRefresh(ctx context.Context, rejected string) (string, error)
}
