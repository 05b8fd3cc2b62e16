package dispatch

import "errors"

// Sentinel errors reported through observer events. None of them reach
// the client.
var (
	ErrNilResolver     = errors.New("resolver is nil")
	ErrNilRequest      = errors.New("request is nil")
	ErrContextNotFound = errors.New("no session context bound to request identity")
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")
	ErrApplyPanic      = errors.New("apply panicked")
)
