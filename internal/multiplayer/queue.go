package multiplayer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/store"
)

// PerUserItemLimit caps non-expired items a single user may own in the
// free-for-all queue modes.
const PerUserItemLimit = 3

// Queue owns the room's ordered playlist and the current-item cursor. Every
// method requires the enclosing room handle to be held.
type Queue struct {
	room   *Room
	db     store.Store
	groups GroupManager
	log    *zerolog.Logger

	items        []*PlaylistItem
	currentIndex int
}

// NewQueue constructs the queue for a room.
func NewQueue(room *Room, db store.Store, groups GroupManager, logger *zerolog.Logger) *Queue {
	return &Queue{
		room:   room,
		db:     db,
		groups: groups,
		log:    logger,
	}
}

// Initialise loads the room's playlist from the database in insertion order
// and selects the current item.
func (q *Queue) Initialise(ctx context.Context) error {
	rows, err := q.db.GetAllPlaylistItems(ctx, q.room.ID)
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}

	q.items = q.items[:0]
	for _, row := range rows {
		q.items = append(q.items, playlistItemFromRow(row))
	}

	q.updateCurrentItem(ctx)
	return nil
}

// CurrentItem returns the item under the cursor, or nil for an empty queue.
func (q *Queue) CurrentItem() *PlaylistItem {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[q.currentIndex]
}

// Items returns the playlist in insertion order.
func (q *Queue) Items() []*PlaylistItem {
	return q.items
}

// AddItem validates and enqueues an item on behalf of user. In host-only
// mode the current item is rewritten in place instead.
func (q *Queue) AddItem(ctx context.Context, item *PlaylistItem, user *RoomUser) error {
	hostOnly := q.room.Settings.QueueMode == QueueModeHostOnly

	if hostOnly {
		if q.room.Host == nil || q.room.Host.UserID != user.UserID {
			return notHost("only the host may set the queued beatmap")
		}
	} else if q.countActiveOwnedBy(user.UserID) >= PerUserItemLimit {
		return invalidState(fmt.Sprintf("cannot own more than %d queued items", PerUserItemLimit))
	}

	checksum, err := q.db.GetBeatmapChecksum(ctx, item.BeatmapID)
	if err != nil {
		return fmt.Errorf("lookup beatmap checksum: %w", err)
	}
	if checksum == "" || checksum != item.BeatmapChecksum {
		return invalidState("beatmap is unknown or has been modified")
	}

	if err := ValidateMods(item.RulesetID, item.RequiredMods, item.AllowedMods); err != nil {
		return invalidState(err.Error())
	}

	if hostOnly {
		current := q.CurrentItem()
		if current == nil {
			return invalidOperation("host-only queue has no current item")
		}

		updated := *item
		updated.ID = current.ID
		updated.OwnerID = current.OwnerID
		updated.Expired = current.Expired

		if err := q.db.UpdatePlaylistItem(ctx, updated.toRow(q.room.ID)); err != nil {
			return fmt.Errorf("update playlist item: %w", err)
		}

		*current = updated
		q.publish(ctx, Event{Event: EventPlaylistItemChanged, Data: PlaylistItemEventData{Item: current}})
		return nil
	}

	added := *item
	added.OwnerID = user.UserID
	added.Expired = false

	id, err := q.db.AddPlaylistItem(ctx, added.toRow(q.room.ID))
	if err != nil {
		return fmt.Errorf("insert playlist item: %w", err)
	}
	added.ID = id

	q.items = append(q.items, &added)
	q.publish(ctx, Event{Event: EventPlaylistItemAdded, Data: PlaylistItemEventData{Item: &added}})

	q.updateCurrentItem(ctx)
	return nil
}

// FinishCurrentItem expires the item whose round just concluded. In
// host-only mode a fully played-out queue is reseeded by duplicating the
// finished item so the host always has a current map to edit.
func (q *Queue) FinishCurrentItem(ctx context.Context) error {
	current := q.CurrentItem()
	if current == nil {
		return invalidOperation("no current playlist item to finish")
	}

	if err := q.db.ExpirePlaylistItem(ctx, current.ID); err != nil {
		return fmt.Errorf("expire playlist item: %w", err)
	}
	current.Expired = true
	q.publish(ctx, Event{Event: EventPlaylistItemChanged, Data: PlaylistItemEventData{Item: current}})

	if q.room.Settings.QueueMode == QueueModeHostOnly && !q.hasActiveItem() {
		if err := q.duplicateItem(ctx, current); err != nil {
			return err
		}
	}

	q.updateCurrentItem(ctx)
	return nil
}

// UpdateFromQueueModeChange re-evaluates the queue after the room's queue
// mode changed.
func (q *Queue) UpdateFromQueueModeChange(ctx context.Context) error {
	if q.room.Settings.QueueMode == QueueModeHostOnly && !q.hasActiveItem() {
		current := q.CurrentItem()
		if current != nil {
			if err := q.duplicateItem(ctx, current); err != nil {
				return err
			}
		}
	}

	q.updateCurrentItem(ctx)
	return nil
}

// duplicateItem re-enqueues a copy of item with a fresh id. The copy carries
// the item's content as it stands now, including any edits made since the
// original round.
func (q *Queue) duplicateItem(ctx context.Context, item *PlaylistItem) error {
	dup := *item
	dup.Expired = false

	id, err := q.db.AddPlaylistItem(ctx, dup.toRow(q.room.ID))
	if err != nil {
		return fmt.Errorf("duplicate playlist item: %w", err)
	}
	dup.ID = id

	q.items = append(q.items, &dup)
	q.publish(ctx, Event{Event: EventPlaylistItemAdded, Data: PlaylistItemEventData{Item: &dup}})
	return nil
}

// updateCurrentItem moves the cursor per the active queue mode and syncs
// Settings.PlaylistItemID, announcing the settings change when it moves.
func (q *Queue) updateCurrentItem(ctx context.Context) {
	if len(q.items) == 0 {
		return
	}

	switch q.room.Settings.QueueMode {
	case QueueModeAllPlayersRoundRobin:
		q.currentIndex = q.selectRoundRobin()
	default:
		q.currentIndex = q.selectFirstActive()
	}

	item := q.items[q.currentIndex]
	if item.ID != q.room.Settings.PlaylistItemID {
		q.room.Settings.PlaylistItemID = item.ID
		q.publish(ctx, Event{Event: EventSettingsChanged, Data: SettingsEventData{Settings: q.room.Settings}})
	}
}

// selectFirstActive picks the first non-expired item in insertion order,
// falling back to the last item when everything has been played.
func (q *Queue) selectFirstActive() int {
	for i, item := range q.items {
		if !item.Expired {
			return i
		}
	}
	return len(q.items) - 1
}

// selectRoundRobin groups items by owner and favours owners whose maps have
// been played the least, so everyone's picks get a turn.
func (q *Queue) selectRoundRobin() int {
	type ownerGroup struct {
		expiredCount int
		firstIndex   int
		candidate    int // index of first non-expired item, -1 if none
	}

	groups := make(map[int32]*ownerGroup)
	order := make([]int32, 0)
	for i, item := range q.items {
		g, ok := groups[item.OwnerID]
		if !ok {
			g = &ownerGroup{firstIndex: i, candidate: -1}
			groups[item.OwnerID] = g
			order = append(order, item.OwnerID)
		}
		if item.Expired {
			g.expiredCount++
		} else if g.candidate < 0 {
			g.candidate = i
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		ga, gb := groups[order[a]], groups[order[b]]
		if ga.expiredCount != gb.expiredCount {
			return ga.expiredCount < gb.expiredCount
		}
		return ga.firstIndex < gb.firstIndex
	})

	for _, owner := range order {
		if c := groups[owner].candidate; c >= 0 {
			return c
		}
	}
	return len(q.items) - 1
}

func (q *Queue) hasActiveItem() bool {
	for _, item := range q.items {
		if !item.Expired {
			return true
		}
	}
	return false
}

func (q *Queue) countActiveOwnedBy(userID int32) int {
	count := 0
	for _, item := range q.items {
		if item.OwnerID == userID && !item.Expired {
			count++
		}
	}
	return count
}

func (q *Queue) publish(ctx context.Context, event Event) {
	if err := q.groups.SendToGroup(ctx, GroupName(q.room.ID, false), event); err != nil {
		q.log.Warn().Err(err).Int64("room_id", q.room.ID).Str("event", event.Event).Msg("broadcast failed")
	}
}
