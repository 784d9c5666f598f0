package handlers

import (
	"github.com/relicta-tech/notebase/internal/container"
)

// Context holds dependencies for HTTP handlers.
type Context struct {
	// App provides the query service, the event store and command wiring.
	App *container.Container
	// ReadOnly rejects every command with 403.
	ReadOnly bool
}

// DefaultContext is the global handler context.
// It is set by the server during initialization.
var DefaultContext *Context

// SetContext sets the default handler context.
func SetContext(ctx *Context) {
	DefaultContext = ctx
}

// GetContext returns the default handler context.
// Returns nil if not initialized.
func GetContext() *Context {
	return DefaultContext
}
