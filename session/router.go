package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/remoting/core/command"
)

// HandlerFunc executes one command and returns zero or more result commands.
// The ctx carries the active context binding for the dispatch in flight.
type HandlerFunc func(ctx context.Context, cmd command.Command) ([]command.Command, error)

// Router maps command names to handlers. Registration and lookup are safe
// for concurrent use.
type Router struct {
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for name.
// Returns ErrAlreadyExists if name is taken; use Replace to swap handlers.
func (r *Router) Register(name string, handler HandlerFunc) error {
	if name == "" {
		return ErrEmptyName
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	r.handlers[name] = handler
	return nil
}

// Replace swaps the handler for an already registered name.
func (r *Router) Replace(name string, handler HandlerFunc) error {
	if name == "" {
		return ErrEmptyName
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Router) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[name]
	return h, exists
}

// Names returns the registered command names in sorted order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Apply runs commands in order and concatenates their results in order.
// The first failing command aborts the batch; no partial results are returned.
func (r *Router) Apply(ctx context.Context, commands []command.Command) ([]command.Command, error) {
	var results []command.Command
	for i, cmd := range commands {
		h, ok := r.Get(cmd.Name())
		if !ok {
			return nil, fmt.Errorf("%w: %s (command %d)", ErrUnknownCommand, cmd.Name(), i)
		}
		out, err := h(ctx, cmd)
		if err != nil {
			return nil, fmt.Errorf("command %s failed: %w", cmd.Name(), err)
		}
		results = append(results, out...)
	}
	return results, nil
}
