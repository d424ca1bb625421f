package driven

import (
	"context"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

// ClientCredentials authenticate the client at the token endpoint
// (HTTP Basic of client id and secret).
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// CodeExchange is an authorization_code grant request.
type CodeExchange struct {
	TokenURL     string
	Client       ClientCredentials
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// RefreshExchange is a refresh_token grant request.
type RefreshExchange struct {
	TokenURL     string
	Client       ClientCredentials
	RefreshToken string
}

// TokenEndpoint talks to the provider's OAuth token endpoint.
// Implementations compute TokenSet.ExpiresAt at the moment the response
// is received.
type TokenEndpoint interface {
	// ExchangeCode redeems an authorization code.
	ExchangeCode(ctx context.Context, req CodeExchange) (domain.TokenSet, error)

	// Refresh redeems a refresh token. The returned RefreshToken may be
	// empty when the provider does not rotate it.
	Refresh(ctx context.Context, req RefreshExchange) (domain.TokenSet, error)
}
