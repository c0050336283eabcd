package proto

import "encoding/json"

// Inbound is the envelope for requests coming from the client. Seq is echoed
// back on the matching reply so clients can correlate.
type Inbound struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello           = "hello"
	InboundTypeJoinRoom        = "join_room"
	InboundTypeLeaveRoom       = "leave_room"
	InboundTypeTransferHost    = "transfer_host"
	InboundTypeChangeState     = "change_state"
	InboundTypeStartMatch      = "start_match"
	InboundTypeChangeSettings  = "change_settings"
	InboundTypeAddPlaylistItem = "add_playlist_item"

	OutboundTypeWelcome = "welcome"
	OutboundTypeReply   = "reply"
	OutboundTypeEvent   = "event"
	OutboundTypeError   = "error"
)

// HelloData is sent by the client to authenticate the connection.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinRoomData requests to join a specific room.
type JoinRoomData struct {
	RoomID int64 `json:"room_id"`
}

// TransferHostData hands host privileges to another member.
type TransferHostData struct {
	UserID int32 `json:"user_id"`
}

// ChangeStateData requests a user state transition.
type ChangeStateData struct {
	State string `json:"state"`
}

// ModData is a gameplay modifier on the wire.
type ModData struct {
	Acronym string `json:"acronym"`
}

// SettingsData is the room settings record on the wire.
type SettingsData struct {
	Name            string    `json:"name"`
	BeatmapID       int32     `json:"beatmap_id"`
	BeatmapChecksum string    `json:"beatmap_checksum"`
	RulesetID       int16     `json:"ruleset_id"`
	RequiredMods    []ModData `json:"required_mods"`
	AllowedMods     []ModData `json:"allowed_mods"`
	QueueMode       string    `json:"queue_mode"`
	PlaylistItemID  int64     `json:"playlist_item_id"`
}

// PlaylistItemData is a playlist item on the wire.
type PlaylistItemData struct {
	ID              int64     `json:"id,omitempty"`
	OwnerID         int32     `json:"owner_id,omitempty"`
	BeatmapID       int32     `json:"beatmap_id"`
	BeatmapChecksum string    `json:"beatmap_checksum"`
	RulesetID       int16     `json:"ruleset_id"`
	RequiredMods    []ModData `json:"required_mods"`
	AllowedMods     []ModData `json:"allowed_mods"`
	Expired         bool      `json:"expired,omitempty"`
}

// WelcomeData confirms a successful hello.
type WelcomeData struct {
	UserID       int32  `json:"user_id"`
	ConnectionID string `json:"connection_id"`
	Protocol     int    `json:"protocol"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Seq   int64  `json:"seq,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
