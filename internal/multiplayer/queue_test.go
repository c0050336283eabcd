package multiplayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaksimov/beatlink-server/internal/store"
)

func newTestQueue(t *testing.T, fs *fakeStore, mode QueueMode) (*Queue, *Room, *fakeGroups) {
	t.Helper()

	fg := newFakeGroups()
	room := &Room{
		ID:       7,
		State:    RoomStateOpen,
		Settings: RoomSettings{QueueMode: mode},
	}
	room.Queue = NewQueue(room, fs, fg, nopLogger())
	require.NoError(t, room.Queue.Initialise(context.Background()))
	return room.Queue, room, fg
}

func seedQueueItem(fs *fakeStore, owner int32, expired bool) int64 {
	return fs.seedItem(&store.PlaylistItem{
		RoomID:          7,
		OwnerID:         owner,
		BeatmapID:       101,
		BeatmapChecksum: "checksum-101",
		Expired:         expired,
	})
}

func TestQueueCurrentItemFirstActive(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	seedQueueItem(fs, 1, true)
	second := seedQueueItem(fs, 1, false)
	seedQueueItem(fs, 2, false)

	q, room, _ := newTestQueue(t, fs, QueueModeAllPlayers)

	require.NotNil(t, q.CurrentItem())
	assert.Equal(t, second, q.CurrentItem().ID)
	assert.Equal(t, second, room.Settings.PlaylistItemID)
}

func TestQueueAllExpiredFallsBackToLast(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	seedQueueItem(fs, 1, true)
	last := seedQueueItem(fs, 2, true)

	q, _, _ := newTestQueue(t, fs, QueueModeAllPlayers)

	require.NotNil(t, q.CurrentItem())
	assert.Equal(t, last, q.CurrentItem().ID)
}

func TestQueueRoundRobinFavoursLeastPlayedOwner(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	// Owner 1 already had two rounds; owner 2 one; owner 3 none.
	seedQueueItem(fs, 1, true)
	seedQueueItem(fs, 1, true)
	seedQueueItem(fs, 1, false)
	seedQueueItem(fs, 2, true)
	seedQueueItem(fs, 2, false)
	owner3Item := seedQueueItem(fs, 3, false)

	q, _, _ := newTestQueue(t, fs, QueueModeAllPlayersRoundRobin)

	require.NotNil(t, q.CurrentItem())
	assert.Equal(t, owner3Item, q.CurrentItem().ID,
		"owner with fewest expired items should be picked first")
}

func TestQueueRoundRobinTieBreaksByInsertionOrder(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	first := seedQueueItem(fs, 5, false)
	seedQueueItem(fs, 6, false)

	q, _, _ := newTestQueue(t, fs, QueueModeAllPlayersRoundRobin)

	require.NotNil(t, q.CurrentItem())
	assert.Equal(t, first, q.CurrentItem().ID)
}

func TestQueueHostOnlyAddRewritesCurrentItem(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	fs.checksums[202] = "checksum-202"
	itemID := seedQueueItem(fs, 1, false)

	q, room, fg := newTestQueue(t, fs, QueueModeHostOnly)
	host := &RoomUser{UserID: 1, ConnectionID: "c1", State: UserStateIdle}
	room.AddUser(host)

	err := q.AddItem(context.Background(), &PlaylistItem{
		BeatmapID:       202,
		BeatmapChecksum: "checksum-202",
		RulesetID:       RulesetKeys,
		RequiredMods:    []Mod{{Acronym: "4K"}},
	}, host)
	require.NoError(t, err)

	require.Len(t, q.Items(), 1, "host-only add must not grow the playlist")
	current := q.CurrentItem()
	assert.Equal(t, itemID, current.ID, "item id is preserved")
	assert.Equal(t, int32(1), current.OwnerID)
	assert.Equal(t, int32(202), current.BeatmapID)
	assert.True(t, fg.hasEvent(GroupName(7, false), EventPlaylistItemChanged))

	// The rewrite is persisted.
	row := fs.items[itemID]
	assert.Equal(t, int32(202), row.BeatmapID)
}

func TestQueueAddRejectsUnknownBeatmap(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	seedQueueItem(fs, 1, false)

	q, room, _ := newTestQueue(t, fs, QueueModeAllPlayers)
	user := &RoomUser{UserID: 2, ConnectionID: "c2", State: UserStateIdle}
	room.AddUser(user)

	err := q.AddItem(context.Background(), &PlaylistItem{
		BeatmapID:       999,
		BeatmapChecksum: "whatever",
	}, user)
	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ErrCodeInvalidState, domainErr.Code)
}

func TestQueueAddRejectsConflictingMods(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	seedQueueItem(fs, 1, false)

	q, room, _ := newTestQueue(t, fs, QueueModeAllPlayers)
	user := &RoomUser{UserID: 2, ConnectionID: "c2", State: UserStateIdle}
	room.AddUser(user)

	err := q.AddItem(context.Background(), &PlaylistItem{
		BeatmapID:       101,
		BeatmapChecksum: "checksum-101",
		RequiredMods:    []Mod{{Acronym: "DT"}},
		AllowedMods:     []Mod{{Acronym: "DT"}},
	}, user)
	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ErrCodeInvalidState, domainErr.Code)

	err = q.AddItem(context.Background(), &PlaylistItem{
		BeatmapID:       101,
		BeatmapChecksum: "checksum-101",
		RulesetID:       RulesetCircles,
		RequiredMods:    []Mod{{Acronym: "4K"}},
	}, user)
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ErrCodeInvalidState, domainErr.Code)
}

func TestQueueFinishDuplicatesInHostOnly(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	first := seedQueueItem(fs, 1, false)

	q, room, fg := newTestQueue(t, fs, QueueModeHostOnly)

	require.NoError(t, q.FinishCurrentItem(context.Background()))

	items := q.Items()
	require.Len(t, items, 2)
	assert.True(t, items[0].Expired)
	assert.False(t, items[1].Expired)
	assert.Equal(t, first, items[0].ID)
	assert.NotEqual(t, first, items[1].ID)
	assert.Equal(t, items[0].OwnerID, items[1].OwnerID)
	assert.Equal(t, items[1].ID, room.Settings.PlaylistItemID)
	assert.True(t, fg.hasEvent(GroupName(7, false), EventPlaylistItemAdded))
	assert.True(t, fg.hasEvent(GroupName(7, false), EventSettingsChanged))
}

func TestQueueFinishNoDuplicateOutsideHostOnly(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	seedQueueItem(fs, 1, false)

	q, _, _ := newTestQueue(t, fs, QueueModeAllPlayers)

	require.NoError(t, q.FinishCurrentItem(context.Background()))
	assert.Len(t, q.Items(), 1)
	assert.True(t, q.Items()[0].Expired)
}

func TestQueueModeChangeToHostOnlyReseedsExpiredQueue(t *testing.T) {
	fs := newFakeStore()
	fs.checksums[101] = "checksum-101"
	seedQueueItem(fs, 1, true)
	seedQueueItem(fs, 2, true)

	q, room, _ := newTestQueue(t, fs, QueueModeAllPlayers)
	room.Settings.QueueMode = QueueModeHostOnly

	require.NoError(t, q.UpdateFromQueueModeChange(context.Background()))

	items := q.Items()
	require.Len(t, items, 3)
	assert.False(t, items[2].Expired)
	assert.Equal(t, items[2].ID, room.Settings.PlaylistItemID)
}
