package multiplayer

import "context"

// GroupManager is the narrow fan-out interface supplied by the transport.
// The core never assumes in-process delivery.
type GroupManager interface {
	// SendToGroup delivers an event to every connection in the group.
	SendToGroup(ctx context.Context, group string, event Event) error

	// AddToGroup registers a connection in the group.
	AddToGroup(ctx context.Context, group string, connectionID string) error

	// RemoveFromGroup drops a connection from the group.
	RemoveFromGroup(ctx context.Context, group string, connectionID string) error
}

// StateCache reconciles per-user session state across server restarts.
// Implementations are best-effort; the hub logs and swallows failures.
type StateCache interface {
	SetUserRoom(ctx context.Context, userID int32, roomID int64) error
	ClearUserRoom(ctx context.Context, userID int32) error
}
