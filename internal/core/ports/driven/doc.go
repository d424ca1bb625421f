// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Vault: persistent credential key/value storage
//   - TokenEndpoint: the provider's OAuth token endpoint
//   - ConfigStore: application settings
//
// # Optional Interfaces
//
//   - Browser: opens authorization URLs. Without it the URL is printed.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
