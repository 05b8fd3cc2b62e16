package dispatch

import "io"

// Request is one inbound batch. Identity is the ambient session token the
// resolver maps to a context. Client is a free-text descriptor such as a
// user agent; it is only logged.
type Request struct {
	Identity string
	Body     io.Reader
	Client   string
}

// Response is the single result of a dispatch. ContentType and Body are
// set only on success.
type Response struct {
	Status      Status
	ContentType string
	Body        []byte
}

// Status is the wire-level result class of a dispatch.
type Status int

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Outcome names the terminal step a dispatch reached.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeUnresolved   Outcome = "unresolved"
	OutcomeDecodeFailed Outcome = "decode_failed"
	OutcomeApplyFailed  Outcome = "apply_failed"
	OutcomeEncodeFailed Outcome = "encode_failed"
)

// Status returns the response status for the outcome.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeSuccess:
		return StatusOK
	case OutcomeDecodeFailed:
		return StatusBadRequest
	default:
		return StatusInternalError
	}
}
