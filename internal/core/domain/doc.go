// Package domain defines the core entities for suitelink.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ClientConfiguration: OAuth client and account settings
//   - PKCESession: verifier, challenge and state for one authorization attempt
//   - TokenSet: access token, refresh token and absolute expiry
//   - AuthenticationState: the flow controller's state machine value
//   - ResourceDescriptor: an opaque description of one remote call
//   - PageCursor / Page: pagination progress and results
//   - ProviderEndpoints: authorize, token and API URL templates per provider
//   - AppSettings: vault backend, rate limits and timeouts from config.toml
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
