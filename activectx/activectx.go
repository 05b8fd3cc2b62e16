// Package activectx exposes the session context handling the current
// dispatch to code running on that dispatch's call path, without threading
// it through every signature.
//
// A binding lives in a context.Context derived for one dispatch. Releasing
// the binding clears it for that path and everything derived from it, so a
// goroutine that captured the context cannot observe a finished dispatch.
package activectx

import (
	"context"
	"sync/atomic"

	"github.com/tailored-agentic-units/remoting/session"
)

type bindingKey struct{}

type binding struct {
	current atomic.Pointer[holder]
}

type holder struct {
	sc session.Context
}

// Bind associates sc with a context derived from ctx and returns it along
// with a release func. Binding on an already bound path shadows the earlier
// binding for the derived path only. Release is idempotent.
func Bind(ctx context.Context, sc session.Context) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	b := &binding{}
	if sc != nil {
		b.current.Store(&holder{sc: sc})
	}
	return context.WithValue(ctx, bindingKey{}, b), func() {
		b.current.Store(nil)
	}
}

// Current returns the session context bound to ctx's path.
func Current(ctx context.Context) (session.Context, bool) {
	if ctx == nil {
		return nil, false
	}
	b, _ := ctx.Value(bindingKey{}).(*binding)
	if b == nil {
		return nil, false
	}
	h := b.current.Load()
	if h == nil {
		return nil, false
	}
	return h.sc, true
}

// CurrentSessionInfo returns the session linked to the bound context, or nil
// when nothing is bound or the context has no session.
func CurrentSessionInfo(ctx context.Context) *session.Info {
	sc, ok := Current(ctx)
	if !ok {
		return nil
	}
	return sc.SessionInfo()
}
