package session

import "errors"

// Sentinel errors for session operations.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrAlreadyExists  = errors.New("command handler already registered")
	ErrNotFound       = errors.New("command handler not found")
	ErrEmptyName      = errors.New("command name is empty")
	ErrNilHandler     = errors.New("command handler is nil")
)
