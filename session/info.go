package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Info is the long-lived client session a Context is linked to. Attributes
// outlive individual requests. All methods are safe for concurrent use.
type Info struct {
	id    string
	attrs map[string]any
	mu    sync.RWMutex
}

// NewInfo creates an empty session with a UUIDv7 identifier.
func NewInfo() *Info {
	return &Info{
		id:    uuid.Must(uuid.NewV7()).String(),
		attrs: make(map[string]any),
	}
}

func (i *Info) ID() string {
	return i.id
}

func (i *Info) Attribute(key string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.attrs[key]
	return v, ok
}

func (i *Info) SetAttribute(key string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attrs[key] = value
}

func (i *Info) RemoveAttribute(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.attrs, key)
}

// AttributeNames returns the attribute keys in sorted order.
func (i *Info) AttributeNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	names := make([]string, 0, len(i.attrs))
	for k := range i.attrs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
