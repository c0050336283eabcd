package store

import (
	"context"
	"time"
)

// Room is the persisted room row. A room is active while EndsAt is null.
type Room struct {
	ID               int64
	Name             string
	Category         string
	HostUserID       int32
	QueueMode        string
	ParticipantCount int
	EndsAt           *time.Time
	CreatedAt        time.Time
}

// RoomCategory values the server recognises.
const (
	RoomCategoryRealtime  = "realtime"
	RoomCategoryPlaylists = "playlists"
)

// PlaylistItem is the persisted playlist item row. Mod sets are stored as
// JSON arrays of acronyms.
type PlaylistItem struct {
	ID              int64
	RoomID          int64
	OwnerID         int32
	BeatmapID       int32
	BeatmapChecksum string
	RulesetID       int16
	RequiredMods    []string
	AllowedMods     []string
	Expired         bool
}

// User is the persisted user row.
type User struct {
	ID         int32
	Username   string
	Restricted bool
}

// RoomStore handles room persistence.
type RoomStore interface {
	// GetRoom retrieves a room by ID.
	GetRoom(ctx context.Context, id int64) (*Room, error)

	// UpdateRoomName persists a room rename.
	UpdateRoomName(ctx context.Context, id int64, name string) error

	// UpdateRoomHost persists a host reassignment.
	UpdateRoomHost(ctx context.Context, id int64, userID int32) error

	// MarkRoomActive clears the room's end timestamp.
	MarkRoomActive(ctx context.Context, id int64) error

	// MarkRoomEnded stamps the room as ended at the current time.
	MarkRoomEnded(ctx context.Context, id int64) error

	// ReplaceParticipants swaps the room's participant set in one
	// transaction and refreshes the participant count.
	ReplaceParticipants(ctx context.Context, roomID int64, userIDs []int32) error
}

// PlaylistStore handles playlist item persistence.
type PlaylistStore interface {
	// GetAllPlaylistItems returns the room's items in insertion order.
	GetAllPlaylistItems(ctx context.Context, roomID int64) ([]*PlaylistItem, error)

	// AddPlaylistItem inserts a new item and returns its assigned id.
	AddPlaylistItem(ctx context.Context, item *PlaylistItem) (int64, error)

	// UpdatePlaylistItem overwrites an existing item's content.
	UpdatePlaylistItem(ctx context.Context, item *PlaylistItem) error

	// ExpirePlaylistItem marks an item as expired.
	ExpirePlaylistItem(ctx context.Context, id int64) error

	// ClearScores removes any scores recorded against a playlist item.
	ClearScores(ctx context.Context, playlistItemID int64) error
}

// UserStore handles user lookups.
type UserStore interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id int32) (*User, error)

	// IsUserRestricted reports whether the user is barred from joining rooms.
	IsUserRestricted(ctx context.Context, userID int32) (bool, error)

	// GetBeatmapChecksum returns the known checksum for a beatmap, or an
	// empty string if the beatmap is unknown.
	GetBeatmapChecksum(ctx context.Context, beatmapID int32) (string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	PlaylistStore
	UserStore

	// Close closes the underlying database connection.
	Close() error
}
