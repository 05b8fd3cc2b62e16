package command

import (
	"fmt"
	"sync"
)

var (
	codecs = map[string]Codec{
		JSONCodec{}.Name():  JSONCodec{},
		ProtoCodec{}.Name(): ProtoCodec{},
	}
	mutex sync.RWMutex
)

// CodecByName returns a registered codec.
// Pre-registered codecs: "json" (JSONCodec) and "proto" (ProtoCodec).
func CodecByName(name string) (Codec, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	c, exists := codecs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
	return c, nil
}

// RegisterCodec adds or replaces a codec under its Name.
func RegisterCodec(c Codec) {
	mutex.Lock()
	defer mutex.Unlock()

	codecs[c.Name()] = c
}
