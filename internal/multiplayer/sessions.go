package multiplayer

// UserSession binds an authenticated connection to the room it joined.
// At most one session exists per user id, process-wide.
type UserSession struct {
	ConnectionID string
	UserID       int32
	RoomID       int64
}
