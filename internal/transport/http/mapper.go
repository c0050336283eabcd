package http

import (
	"errors"

	"github.com/dmaksimov/beatlink-server/internal/multiplayer"
	"github.com/dmaksimov/beatlink-server/internal/proto"
)

func settingsFromWire(data proto.SettingsData) multiplayer.RoomSettings {
	return multiplayer.RoomSettings{
		Name:            data.Name,
		BeatmapID:       data.BeatmapID,
		BeatmapChecksum: data.BeatmapChecksum,
		RulesetID:       data.RulesetID,
		RequiredMods:    wireMods(data.RequiredMods),
		AllowedMods:     wireMods(data.AllowedMods),
		QueueMode:       multiplayer.QueueMode(data.QueueMode),
		PlaylistItemID:  data.PlaylistItemID,
	}
}

func playlistItemFromWire(data proto.PlaylistItemData) *multiplayer.PlaylistItem {
	return &multiplayer.PlaylistItem{
		ID:              data.ID,
		OwnerID:         data.OwnerID,
		BeatmapID:       data.BeatmapID,
		BeatmapChecksum: data.BeatmapChecksum,
		RulesetID:       data.RulesetID,
		RequiredMods:    wireMods(data.RequiredMods),
		AllowedMods:     wireMods(data.AllowedMods),
	}
}

func wireMods(mods []proto.ModData) []multiplayer.Mod {
	out := make([]multiplayer.Mod, 0, len(mods))
	for _, m := range mods {
		out = append(out, multiplayer.Mod{Acronym: m.Acronym})
	}
	return out
}

// errorToWire maps a domain error onto the wire code set. Unexpected errors
// are masked as invalid_operation so internals never leak to clients.
func errorToWire(err error) *proto.Error {
	var domainErr *multiplayer.Error
	if errors.As(err, &domainErr) {
		return &proto.Error{Code: domainErr.Code, Msg: domainErr.Message}
	}
	return &proto.Error{Code: multiplayer.ErrCodeInvalidOperation, Msg: "operation failed"}
}
