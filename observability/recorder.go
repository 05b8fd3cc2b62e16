package observability

import (
	"context"
	"slices"
	"sync"
)

// Recorder keeps every event it receives. Useful for asserting on dispatch
// behavior in tests. Safe for concurrent use.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

func (r *Recorder) OnEvent(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// AtLevel returns the recorded events with exactly the given level.
func (r *Recorder) AtLevel(level Level) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
