package domain

import "errors"

var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrMessageTooLarge = errors.New("message too large")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidInput    = errors.New("invalid input")
)
