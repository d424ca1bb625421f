package oauth

import (
	"github.com/skratchdot/open-golang/open"

	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
)

// Ensure SystemBrowser implements the interface.
var _ driven.Browser = SystemBrowser{}

// SystemBrowser opens URLs with the platform's default handler.
type SystemBrowser struct{}

// Open starts the browser and returns without waiting for it.
func (SystemBrowser) Open(url string) error {
	return open.Start(url)
}
