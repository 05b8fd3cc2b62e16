package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/remoting/core/command"
)

type memoryContext struct {
	id     string
	codec  command.Codec
	router *Router
	info   *Info
	mu     sync.Mutex
}

// NewMemoryContext creates a Context that routes commands through router.
// The context is assigned a unique UUIDv7 identifier. info may be nil.
func NewMemoryContext(codec command.Codec, router *Router, info *Info) Context {
	if codec == nil {
		codec = command.JSONCodec{}
	}
	if router == nil {
		router = NewRouter()
	}
	return &memoryContext{
		id:     uuid.Must(uuid.NewV7()).String(),
		codec:  codec,
		router: router,
		info:   info,
	}
}

func (c *memoryContext) ID() string {
	return c.id
}

func (c *memoryContext) Codec() command.Codec {
	return c.codec
}

func (c *memoryContext) Apply(ctx context.Context, commands []command.Command) ([]command.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.Apply(ctx, commands)
}

func (c *memoryContext) SessionInfo() *Info {
	return c.info
}
