package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/remoting/activectx"
	"github.com/tailored-agentic-units/remoting/core/command"
	"github.com/tailored-agentic-units/remoting/session"
)

var (
	errNoSession  = errors.New("no session bound to the active context")
	errMissingKey = errors.New("missing key attribute")
	errNotGeneric = errors.New("command does not carry attributes")
)

func registerCommands(router *session.Router) error {
	handlers := map[string]session.HandlerFunc{
		"ping":          handlePing,
		"session.set":   handleSessionSet,
		"session.get":   handleSessionGet,
		"session.clear": handleSessionClear,
	}
	for name, h := range handlers {
		if err := router.Register(name, h); err != nil {
			return fmt.Errorf("failed to register command %s: %w", name, err)
		}
	}
	return nil
}

func handlePing(ctx context.Context, _ command.Command) ([]command.Command, error) {
	attrs := map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}
	if sc, ok := activectx.Current(ctx); ok {
		attrs["context_id"] = sc.ID()
	}
	return []command.Command{command.New("pong", attrs)}, nil
}

// session.set {key, value}: stores value on the caller's session.
func handleSessionSet(ctx context.Context, cmd command.Command) ([]command.Command, error) {
	info, g, key, err := sessionArgs(ctx, cmd)
	if err != nil {
		return nil, err
	}
	value, _ := g.Attribute("value")
	info.SetAttribute(key, value)
	return nil, nil
}

// session.get {key}: answers with session.value {key, value, present}.
func handleSessionGet(ctx context.Context, cmd command.Command) ([]command.Command, error) {
	info, _, key, err := sessionArgs(ctx, cmd)
	if err != nil {
		return nil, err
	}
	value, present := info.Attribute(key)
	return []command.Command{command.New("session.value", map[string]any{
		"key":     key,
		"value":   value,
		"present": present,
	})}, nil
}

// session.clear {key?}: removes one attribute, or all of them without a key.
func handleSessionClear(ctx context.Context, cmd command.Command) ([]command.Command, error) {
	info := activectx.CurrentSessionInfo(ctx)
	if info == nil {
		return nil, errNoSession
	}
	g, ok := cmd.(command.Generic)
	if !ok {
		return nil, errNotGeneric
	}
	if key := g.String("key"); key != "" {
		info.RemoveAttribute(key)
		return nil, nil
	}
	for _, name := range info.AttributeNames() {
		info.RemoveAttribute(name)
	}
	return nil, nil
}

func sessionArgs(ctx context.Context, cmd command.Command) (*session.Info, command.Generic, string, error) {
	info := activectx.CurrentSessionInfo(ctx)
	if info == nil {
		return nil, command.Generic{}, "", errNoSession
	}
	g, ok := cmd.(command.Generic)
	if !ok {
		return nil, command.Generic{}, "", errNotGeneric
	}
	key := g.String("key")
	if key == "" {
		return nil, command.Generic{}, "", errMissingKey
	}
	return info, g, key, nil
}
