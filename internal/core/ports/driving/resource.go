package driving

import (
	"context"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

// ResourceClient executes authenticated calls against the record/query service.
type ResourceClient interface {
	// Execute performs the call and returns the raw 2xx body.
	Execute(ctx context.Context, res domain.ResourceDescriptor) ([]byte, error)

	// ExecuteInto performs the call and decodes the body into out.
	ExecuteInto(ctx context.Context, res domain.ResourceDescriptor, out any) error
}
