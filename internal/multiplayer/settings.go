package multiplayer

// QueueMode governs current-item selection and who may enqueue.
type QueueMode string

const (
	QueueModeHostOnly             QueueMode = "host_only"
	QueueModeAllPlayers           QueueMode = "all_players"
	QueueModeAllPlayersRoundRobin QueueMode = "all_players_round_robin"
)

// ValidQueueMode reports whether the mode is one the server understands.
func ValidQueueMode(mode QueueMode) bool {
	switch mode {
	case QueueModeHostOnly, QueueModeAllPlayers, QueueModeAllPlayersRoundRobin:
		return true
	default:
		return false
	}
}

// RoomSettings is the mutable settings record of a room.
type RoomSettings struct {
	Name            string    `json:"name"`
	BeatmapID       int32     `json:"beatmap_id"`
	BeatmapChecksum string    `json:"beatmap_checksum"`
	RulesetID       int16     `json:"ruleset_id"`
	RequiredMods    []Mod     `json:"required_mods"`
	AllowedMods     []Mod     `json:"allowed_mods"`
	QueueMode       QueueMode `json:"queue_mode"`
	PlaylistItemID  int64     `json:"playlist_item_id"`
}

// Equals compares settings by value over all scalar fields with mod-set
// equivalence.
func (s RoomSettings) Equals(other RoomSettings) bool {
	return s.Name == other.Name &&
		s.BeatmapID == other.BeatmapID &&
		s.BeatmapChecksum == other.BeatmapChecksum &&
		s.RulesetID == other.RulesetID &&
		s.QueueMode == other.QueueMode &&
		s.PlaylistItemID == other.PlaylistItemID &&
		modsEqual(s.RequiredMods, other.RequiredMods) &&
		modsEqual(s.AllowedMods, other.AllowedMods)
}
