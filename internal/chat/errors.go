package chat

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNoMessages       = errors.New("no messages to summarize")
	ErrInvalidMessage   = errors.New("invalid message")
)
