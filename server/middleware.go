package server

import (
	"net/http"
	"strings"

	"github.com/tailored-agentic-units/remoting/session"
)

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in declaration order.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// RequireMethod rejects requests outside the allowed method.
func RequireMethod(method string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				w.Header().Set("Allow", method)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Creator binds a fresh session context for a new client.
type Creator interface {
	Create() session.Context
}

// Sessions creates contexts for new clients and resolves known ones.
// *session.Registry satisfies it.
type Sessions interface {
	Creator
	session.Resolver
}

// ClientID ensures every request carries a client id in header. A request
// without one gets a freshly created context, and its id is set on the
// request and echoed in the response. Requests that already carry an id
// pass through untouched; an unknown id is left for the dispatcher to
// reject.
func ClientID(header string, creator Creator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				id = creator.Create().ID()
				r.Header.Set(header, id)
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r)
		})
	}
}
