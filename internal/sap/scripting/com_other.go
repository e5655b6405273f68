//go:build !windows

package scripting

import "github.com/antonkrylov/saprunner/internal/sap"

// WithCOM runs fn directly; there is no COM runtime on this platform.
func WithCOM(fn func() error) error { return fn() }

// Locator always reports that SAP GUI scripting is unavailable.
type Locator struct{}

func (Locator) Locate() (sap.Engine, error) {
	return nil, sap.ErrUnsupportedPlatform
}
