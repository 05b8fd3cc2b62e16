// Package command defines the opaque protocol commands exchanged between a
// remote UI client and its server-side session context, along with the codecs
// that move them on and off the wire.
package command

import (
	"encoding/json"
	"maps"
)

// idField is the member that names a command on the wire.
const idField = "id"

// Command is a single protocol instruction or result. Its shape is owned by
// the codec that produced it; dispatch code treats it as opaque.
type Command interface {
	Name() string
}

// Codec converts between a wire payload and an ordered command sequence.
// Implementations must preserve order in both directions.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string
	// ContentType is the response media type, including charset for text codecs.
	ContentType() string
	// Decode parses a full request payload.
	Decode(payload []byte) ([]Command, error)
	// Encode serializes a result sequence.
	Encode(commands []Command) ([]byte, error)
}

// Generic is a command carrying an id and a flat attribute set.
// Both built-in codecs decode into Generic.
type Generic struct {
	ID         string
	Attributes map[string]any
}

// New creates a Generic command. A nil attribute map is allowed.
//
// Example:
//
//	cmd := command.New("session.get", map[string]any{"key": "theme"})
func New(id string, attributes map[string]any) Generic {
	return Generic{ID: id, Attributes: attributes}
}

func (g Generic) Name() string {
	return g.ID
}

// Attribute returns the named attribute and whether it was present.
func (g Generic) Attribute(key string) (any, bool) {
	v, ok := g.Attributes[key]
	return v, ok
}

// String returns the named attribute when it holds a string.
func (g Generic) String(key string) string {
	s, _ := g.Attributes[key].(string)
	return s
}

// MarshalJSON writes the flat wire form: {"id": ..., <attributes>}.
// An "id" attribute never overrides the command id.
func (g Generic) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(g.Attributes)+1)
	maps.Copy(flat, g.Attributes)
	flat[idField] = g.ID
	return json.Marshal(flat)
}

func fromMap(m map[string]any) (Generic, error) {
	id, _ := m[idField].(string)
	if id == "" {
		return Generic{}, ErrMissingID
	}
	attrs := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k == idField {
			continue
		}
		attrs[k] = v
	}
	return Generic{ID: id, Attributes: attrs}, nil
}
