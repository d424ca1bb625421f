// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The FlowController runs the authorization code flow and the
// TokenManager is the only writer of the stored token set. The
// APIClient, Pager and RecordService sit on top of both.
package services
