package multiplayer

import (
	"github.com/dmaksimov/beatlink-server/internal/store"
)

// RoomUser is a room member. ConnectionID is the opaque transport token used
// for broadcast group membership.
type RoomUser struct {
	UserID       int32     `json:"user_id"`
	ConnectionID string    `json:"-"`
	State        UserState `json:"state"`
}

// Room is the authoritative in-memory representation of a multiplayer room.
// All mutation happens under the exclusive room handle held by the hub.
type Room struct {
	ID       int64
	Settings RoomSettings
	State    RoomState
	Host     *RoomUser
	Users    []*RoomUser
	Queue    *Queue
}

// FindUser returns the member with the given user id, or nil.
func (r *Room) FindUser(userID int32) *RoomUser {
	for _, u := range r.Users {
		if u.UserID == userID {
			return u
		}
	}
	return nil
}

// AddUser appends a member. The first joiner becomes host.
func (r *Room) AddUser(u *RoomUser) {
	r.Users = append(r.Users, u)
	if r.Host == nil {
		r.Host = u
	}
}

// RemoveUser deletes a member preserving insertion order.
func (r *Room) RemoveUser(userID int32) *RoomUser {
	for i, u := range r.Users {
		if u.UserID == userID {
			r.Users = append(r.Users[:i], r.Users[i+1:]...)
			return u
		}
	}
	return nil
}

// UserIDs returns member ids in insertion order.
func (r *Room) UserIDs() []int32 {
	ids := make([]int32, 0, len(r.Users))
	for _, u := range r.Users {
		ids = append(ids, u.UserID)
	}
	return ids
}

func (r *Room) anyUserIn(state UserState) bool {
	for _, u := range r.Users {
		if u.State == state {
			return true
		}
	}
	return false
}

func (r *Room) usersIn(state UserState) []*RoomUser {
	var out []*RoomUser
	for _, u := range r.Users {
		if u.State == state {
			out = append(out, u)
		}
	}
	return out
}

// PlaylistItem is a queued map with its mod constraints. Items are never
// deleted in-memory while the room is live; finished rounds flip Expired.
type PlaylistItem struct {
	ID              int64  `json:"id"`
	OwnerID         int32  `json:"owner_id"`
	BeatmapID       int32  `json:"beatmap_id"`
	BeatmapChecksum string `json:"beatmap_checksum"`
	RulesetID       int16  `json:"ruleset_id"`
	RequiredMods    []Mod  `json:"required_mods"`
	AllowedMods     []Mod  `json:"allowed_mods"`
	Expired         bool   `json:"expired"`
}

func playlistItemFromRow(row *store.PlaylistItem) *PlaylistItem {
	return &PlaylistItem{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		BeatmapID:       row.BeatmapID,
		BeatmapChecksum: row.BeatmapChecksum,
		RulesetID:       row.RulesetID,
		RequiredMods:    modsFromAcronyms(row.RequiredMods),
		AllowedMods:     modsFromAcronyms(row.AllowedMods),
		Expired:         row.Expired,
	}
}

func (p *PlaylistItem) toRow(roomID int64) *store.PlaylistItem {
	return &store.PlaylistItem{
		ID:              p.ID,
		RoomID:          roomID,
		OwnerID:         p.OwnerID,
		BeatmapID:       p.BeatmapID,
		BeatmapChecksum: p.BeatmapChecksum,
		RulesetID:       p.RulesetID,
		RequiredMods:    modAcronyms(p.RequiredMods),
		AllowedMods:     modAcronyms(p.AllowedMods),
		Expired:         p.Expired,
	}
}

// RoomSnapshot is the read-only view returned to a joining client.
type RoomSnapshot struct {
	ID         int64           `json:"id"`
	State      RoomState       `json:"state"`
	Settings   RoomSettings    `json:"settings"`
	HostUserID int32           `json:"host_user_id"`
	Users      []RoomUser      `json:"users"`
	Playlist   []*PlaylistItem `json:"playlist"`
}

// Snapshot copies the room's observable state.
func (r *Room) Snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		ID:       r.ID,
		State:    r.State,
		Settings: r.Settings,
	}
	if r.Host != nil {
		snap.HostUserID = r.Host.UserID
	}
	for _, u := range r.Users {
		snap.Users = append(snap.Users, *u)
	}
	if r.Queue != nil {
		for _, item := range r.Queue.items {
			copied := *item
			snap.Playlist = append(snap.Playlist, &copied)
		}
	}
	return snap
}
