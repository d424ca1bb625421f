package driving

import (
	"context"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

// AuthService drives the authorization-code-with-PKCE flow.
type AuthService interface {
	// Configure validates and stores the client configuration.
	Configure(ctx context.Context, cfg domain.ClientConfiguration) error

	// Configuration returns the stored client configuration.
	Configuration(ctx context.Context) (domain.ClientConfiguration, error)

	// IsConfigured reports whether all configuration fields are set.
	IsConfigured(ctx context.Context) bool

	// StartFlow returns the authorization URL to open.
	// Returns an empty URL when already authenticated.
	StartFlow(ctx context.Context) (string, error)

	// HandleCallback consumes the redirect URL and exchanges the code.
	HandleCallback(ctx context.Context, callbackURL string) error

	// Logout clears stored tokens. Idempotent.
	Logout(ctx context.Context) error

	// Reset clears tokens and client configuration.
	Reset(ctx context.Context) error

	// State returns the current authentication state.
	State() domain.AuthenticationState

	// IsAuthenticated reports whether a non-expired token set is stored.
	IsAuthenticated(ctx context.Context) bool

	// Subscribe registers for state transitions. The returned func unsubscribes.
	Subscribe(buffer int) (<-chan domain.AuthenticationState, func())
}
