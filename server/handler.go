// Package server exposes a Dispatcher over HTTP: a plain POST endpoint, a
// Connect unary procedure, client-id binding, per-client rate limiting and
// a Prometheus scrape endpoint.
package server

import (
	"context"
	"net/http"

	"github.com/tailored-agentic-units/remoting/dispatch"
)

// Dispatcher runs one command batch to a terminal response.
type Dispatcher interface {
	Handle(ctx context.Context, req *dispatch.Request) *dispatch.Response
}

// Handler adapts a Dispatcher to net/http. The client id header carries the
// request identity and the user agent is passed as the client descriptor.
type Handler struct {
	dispatcher Dispatcher
	header     string
}

// NewHandler creates a Handler reading identities from header.
func NewHandler(d Dispatcher, header string) *Handler {
	return &Handler{dispatcher: d, header: header}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.dispatcher.Handle(r.Context(), &dispatch.Request{
		Identity: r.Header.Get(h.header),
		Body:     r.Body,
		Client:   r.UserAgent(),
	})

	if resp.Status != dispatch.StatusOK {
		w.WriteHeader(HTTPStatus(resp.Status))
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

// HTTPStatus maps a dispatch status to its HTTP status code.
func HTTPStatus(s dispatch.Status) int {
	switch s {
	case dispatch.StatusOK:
		return http.StatusOK
	case dispatch.StatusBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
