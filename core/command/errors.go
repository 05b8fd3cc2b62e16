package command

import "errors"

// Sentinel errors for codec operations.
var (
	ErrEmptyPayload       = errors.New("empty payload")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrMissingID          = errors.New("command id is missing")
	ErrUnsupportedCommand = errors.New("unsupported command type")
	ErrUnknownCodec       = errors.New("unknown codec")
)
