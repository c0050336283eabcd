package multiplayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/store"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// fakeStore is an in-memory store.Store for exercising the hub and queue
// without a database.
type fakeStore struct {
	mu sync.Mutex

	rooms      map[int64]*store.Room
	items      map[int64]*store.PlaylistItem
	itemOrder  map[int64][]int64 // roomID -> item ids in insertion order
	checksums  map[int32]string
	restricted map[int32]bool

	participants  map[int64][]int32
	clearedScores []int64
	endedRooms    map[int64]bool

	nextItemID int64

	failUpdateRoomName bool
	failUpdateRoomHost bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:        make(map[int64]*store.Room),
		items:        make(map[int64]*store.PlaylistItem),
		itemOrder:    make(map[int64][]int64),
		checksums:    make(map[int32]string),
		restricted:   make(map[int32]bool),
		participants: make(map[int64][]int32),
		endedRooms:   make(map[int64]bool),
	}
}

func (f *fakeStore) addRoom(room *store.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room
}

func (f *fakeStore) seedItem(item *store.PlaylistItem) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextItemID++
	item.ID = f.nextItemID
	f.items[item.ID] = item
	f.itemOrder[item.RoomID] = append(f.itemOrder[item.RoomID], item.ID)
	return item.ID
}

func (f *fakeStore) GetRoom(_ context.Context, id int64) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room not found")
	}
	copied := *room
	return &copied, nil
}

func (f *fakeStore) UpdateRoomName(_ context.Context, id int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateRoomName {
		return fmt.Errorf("forced name update failure")
	}
	if room, ok := f.rooms[id]; ok {
		room.Name = name
	}
	return nil
}

func (f *fakeStore) UpdateRoomHost(_ context.Context, id int64, userID int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateRoomHost {
		return fmt.Errorf("forced host update failure")
	}
	if room, ok := f.rooms[id]; ok {
		room.HostUserID = userID
	}
	return nil
}

func (f *fakeStore) MarkRoomActive(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.endedRooms, id)
	return nil
}

func (f *fakeStore) MarkRoomEnded(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedRooms[id] = true
	if room, ok := f.rooms[id]; ok {
		now := time.Now()
		room.EndsAt = &now
	}
	return nil
}

func (f *fakeStore) ReplaceParticipants(_ context.Context, roomID int64, userIDs []int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[roomID] = append([]int32(nil), userIDs...)
	return nil
}

func (f *fakeStore) GetAllPlaylistItems(_ context.Context, roomID int64) ([]*store.PlaylistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.PlaylistItem
	for _, id := range f.itemOrder[roomID] {
		copied := *f.items[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) AddPlaylistItem(_ context.Context, item *store.PlaylistItem) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextItemID++
	copied := *item
	copied.ID = f.nextItemID
	f.items[copied.ID] = &copied
	f.itemOrder[copied.RoomID] = append(f.itemOrder[copied.RoomID], copied.ID)
	return copied.ID, nil
}

func (f *fakeStore) UpdatePlaylistItem(_ context.Context, item *store.PlaylistItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		return fmt.Errorf("item not found")
	}
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeStore) ExpirePlaylistItem(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return fmt.Errorf("item not found")
	}
	item.Expired = true
	return nil
}

func (f *fakeStore) ClearScores(_ context.Context, playlistItemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedScores = append(f.clearedScores, playlistItemID)
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id int32) (*store.User, error) {
	return &store.User{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
}

func (f *fakeStore) IsUserRestricted(_ context.Context, userID int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restricted[userID], nil
}

func (f *fakeStore) GetBeatmapChecksum(_ context.Context, beatmapID int32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checksums[beatmapID], nil
}

func (f *fakeStore) Close() error { return nil }

// fakeGroups records fan-out traffic and group membership.
type fakeGroups struct {
	mu      sync.Mutex
	members map[string]map[string]bool
	events  map[string][]Event
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{
		members: make(map[string]map[string]bool),
		events:  make(map[string][]Event),
	}
}

func (g *fakeGroups) SendToGroup(_ context.Context, group string, event Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[group] = append(g.events[group], event)
	return nil
}

func (g *fakeGroups) AddToGroup(_ context.Context, group string, connectionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members[group] == nil {
		g.members[group] = make(map[string]bool)
	}
	g.members[group][connectionID] = true
	return nil
}

func (g *fakeGroups) RemoveFromGroup(_ context.Context, group string, connectionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members[group], connectionID)
	return nil
}

func (g *fakeGroups) inGroup(group, connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members[group][connectionID]
}

func (g *fakeGroups) eventsFor(group string) []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events[group]...)
}

func (g *fakeGroups) countEvents(group, name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, ev := range g.events[group] {
		if ev.Event == name {
			count++
		}
	}
	return count
}

func (g *fakeGroups) hasEvent(group, name string) bool {
	return g.countEvents(group, name) > 0
}
