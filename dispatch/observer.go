package dispatch

import "github.com/tailored-agentic-units/remoting/observability"

// Dispatch event types.
const (
	EventReceive       observability.EventType = "dispatch.receive"
	EventRespond       observability.EventType = "dispatch.respond"
	EventResolveFailed observability.EventType = "dispatch.resolve.failed"
	EventDecodeFailed  observability.EventType = "dispatch.decode.failed"
	EventApplyFailed   observability.EventType = "dispatch.apply.failed"
	EventEncodeFailed  observability.EventType = "dispatch.encode.failed"
)
