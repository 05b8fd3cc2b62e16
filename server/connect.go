package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/remoting/dispatch"
)

// DispatchProcedure is the Connect procedure serving command batches.
const DispatchProcedure = "/remoting.v1.RemotingService/Dispatch"

var (
	errBadRequest = errors.New("bad request")
	errInternal   = errors.New("internal error")
)

// rawCodec hands message bytes through untouched; the session context's
// own codec does the real decoding. Registered under both Connect codec
// names so either content type reaches the dispatcher.
type rawCodec struct {
	name string
}

func (c rawCodec) Name() string {
	return c.name
}

func (rawCodec) Marshal(msg any) ([]byte, error) {
	p, ok := msg.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec: unexpected message type %T", msg)
	}
	return *p, nil
}

func (rawCodec) Unmarshal(data []byte, msg any) error {
	p, ok := msg.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: unexpected message type %T", msg)
	}
	*p = append((*p)[:0], data...)
	return nil
}

// NewConnectHandler serves the Dispatcher as a Connect unary procedure and
// returns the mount path with the handler. Bad requests map to
// invalid_argument and every other failure to internal.
func NewConnectHandler(d Dispatcher, header string, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(rawCodec{name: "json"}),
		connect.WithCodec(rawCodec{name: "proto"}),
	}, opts...)

	h := connect.NewUnaryHandler(
		DispatchProcedure,
		func(ctx context.Context, req *connect.Request[[]byte]) (*connect.Response[[]byte], error) {
			resp := d.Handle(ctx, &dispatch.Request{
				Identity: req.Header().Get(header),
				Body:     bytes.NewReader(*req.Msg),
				Client:   req.Header().Get("User-Agent"),
			})

			switch resp.Status {
			case dispatch.StatusOK:
				return connect.NewResponse(&resp.Body), nil
			case dispatch.StatusBadRequest:
				return nil, connect.NewError(connect.CodeInvalidArgument, errBadRequest)
			default:
				return nil, connect.NewError(connect.CodeInternal, errInternal)
			}
		},
		opts...,
	)
	return DispatchProcedure, h
}
