package utils

import "github.com/google/uuid"

// NewConnectionID returns the opaque token identifying a websocket connection.
func NewConnectionID() string {
	return uuid.New().String()
}
