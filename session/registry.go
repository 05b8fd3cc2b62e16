package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/remoting/core/command"
)

// Config holds registry initialization parameters.
type Config struct {
	Codec string `json:"codec,omitempty" yaml:"codec,omitempty" env:"REMOTING_SESSION_CODEC"` // Codec name for new contexts.
}

// DefaultConfig returns the default session configuration (JSON codec).
func DefaultConfig() Config {
	return Config{Codec: command.JSONCodec{}.Name()}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Codec != "" {
		c.Codec = source.Codec
	}
}

// Registry binds client identities to their Contexts. The identity of a
// context is its ID. Registry implements Resolver and is safe for
// concurrent use.
type Registry struct {
	codec    command.Codec
	router   *Router
	contexts map[string]Context
	mu       sync.RWMutex
}

// NewRegistry creates a Registry whose contexts use the configured codec and
// share router.
func NewRegistry(cfg *Config, router *Router) (*Registry, error) {
	codec, err := command.CodecByName(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}
	if router == nil {
		router = NewRouter()
	}
	return &Registry{
		codec:    codec,
		router:   router,
		contexts: make(map[string]Context),
	}, nil
}

// Create binds a fresh Context, linked to a fresh Info, and returns it.
func (r *Registry) Create() Context {
	sc := NewMemoryContext(r.codec, r.router, NewInfo())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[sc.ID()] = sc
	return sc
}

// Add binds an externally built Context under its ID.
func (r *Registry) Add(sc Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[sc.ID()] = sc
}

// Remove unbinds the context with the given id. Missing ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

func (r *Registry) Resolve(_ context.Context, identity string) (Context, bool) {
	if identity == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.contexts[identity]
	return sc, ok
}
