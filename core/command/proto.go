package command

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoCodec carries commands as a binary google.protobuf.ListValue whose
// elements are Struct values in the same id + attributes shape as JSONCodec.
// Only Generic commands can be encoded.
type ProtoCodec struct{}

func (ProtoCodec) Name() string {
	return "proto"
}

func (ProtoCodec) ContentType() string {
	return "application/proto"
}

// Decode accepts a zero-length payload as an empty batch: that is the wire
// form of an empty ListValue.
func (ProtoCodec) Decode(payload []byte) ([]Command, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(payload, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	commands := make([]Command, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: command %d is not a struct", ErrMalformedPayload, i)
		}
		cmd, err := fromMap(s.AsMap())
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func (ProtoCodec) Encode(commands []Command) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(commands))}
	for i, c := range commands {
		g, ok := c.(Generic)
		if !ok {
			return nil, fmt.Errorf("%w: command %d (%T)", ErrUnsupportedCommand, i, c)
		}
		fields := make(map[string]any, len(g.Attributes)+1)
		for k, v := range g.Attributes {
			fields[k] = v
		}
		fields[idField] = g.ID
		s, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("encode command %d: %w", i, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}

	data, err := proto.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode commands: %w", err)
	}
	return data, nil
}
