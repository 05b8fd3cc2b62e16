// Package session holds the server-side state owned by each remote client:
// the session Context that executes commands, the long-lived Info it links
// to, and the Registry that resolves a caller's identity to its Context.
package session

import (
	"context"

	"github.com/tailored-agentic-units/remoting/core/command"
)

// Context is the server-side state bound to one client session. Its state
// changes only through Apply. Implementations serialize concurrent Apply
// calls themselves.
type Context interface {
	// ID returns the unique context identifier used for correlation.
	ID() string
	// Codec returns the codec used for this context's wire traffic.
	Codec() command.Codec
	// Apply executes commands in order and returns the result commands.
	Apply(ctx context.Context, commands []command.Command) ([]command.Command, error)
	// SessionInfo returns the linked session, or nil when there is none.
	SessionInfo() *Info
}

// Resolver maps a request's ambient identity to its bound Context.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (Context, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, identity string) (Context, bool)

func (f ResolverFunc) Resolve(ctx context.Context, identity string) (Context, bool) {
	return f(ctx, identity)
}
