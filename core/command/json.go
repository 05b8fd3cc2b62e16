package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// JSONCodec reads and writes a JSON array of flat command objects:
//
//	[{"id":"session.set","key":"theme","value":"dark"},{"id":"ping"}]
//
// Numbers decode as json.Number so integer attributes survive unchanged.
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) ContentType() string {
	return "application/json; charset=UTF-8"
}

func (JSONCodec) Decode(payload []byte) ([]Command, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	var elements []json.RawMessage
	if err := dec.Decode(&elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after command array", ErrMalformedPayload)
	}
	if elements == nil {
		return nil, fmt.Errorf("%w: payload is not an array", ErrMalformedPayload)
	}

	commands := make([]Command, 0, len(elements))
	for i, raw := range elements {
		var fields map[string]any
		elem := json.NewDecoder(bytes.NewReader(raw))
		elem.UseNumber()
		if err := elem.Decode(&fields); err != nil {
			return nil, fmt.Errorf("%w: command %d: %v", ErrMalformedPayload, i, err)
		}
		cmd, err := fromMap(fields)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func (JSONCodec) Encode(commands []Command) ([]byte, error) {
	if commands == nil {
		commands = []Command{}
	}
	data, err := json.Marshal(commands)
	if err != nil {
		return nil, fmt.Errorf("encode commands: %w", err)
	}
	return data, nil
}
