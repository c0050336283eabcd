package multiplayer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/entity"
	"github.com/dmaksimov/beatlink-server/internal/store"
)

// Hub is the user/room lifecycle coordinator. It owns the entity registries
// and serialises every room operation behind the room's handle. When a
// handler needs both the user session and the room, it always acquires the
// session first, then the room.
type Hub struct {
	db        store.Store
	groups    GroupManager
	cache     StateCache
	log       *zerolog.Logger
	dbTimeout time.Duration

	rooms    *entity.Store[int64, Room]
	sessions *entity.Store[int32, UserSession]
}

// NewHub constructs the coordinator. cache may be nil when no distributed
// state cache is configured.
func NewHub(db store.Store, groups GroupManager, cache StateCache, logger *zerolog.Logger, dbTimeout time.Duration) *Hub {
	if dbTimeout <= 0 {
		dbTimeout = 10 * time.Second
	}
	return &Hub{
		db:        db,
		groups:    groups,
		cache:     cache,
		log:       logger,
		dbTimeout: dbTimeout,
		rooms:     entity.NewStore[int64, Room](),
		sessions:  entity.NewStore[int32, UserSession](),
	}
}

// Rooms exposes the room registry for test fixtures.
func (h *Hub) Rooms() *entity.Store[int64, Room] { return h.rooms }

// Sessions exposes the session registry for test fixtures.
func (h *Hub) Sessions() *entity.Store[int32, UserSession] { return h.sessions }

// opContext detaches from the caller's cancellation once handles are held,
// so a mid-handler disconnect cannot abandon a half-applied mutation. The
// timeout bounds database work.
func (h *Hub) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.dbTimeout)
}

// JoinRoom adds the authenticated user to a room, creating the in-memory
// room from its database row on first join. Returns the room snapshot.
func (h *Hub) JoinRoom(ctx context.Context, connectionID string, userID int32, roomID int64) (*RoomSnapshot, error) {
	restricted, err := h.db.IsUserRestricted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user restriction: %w", err)
	}
	if restricted {
		return nil, invalidState("user is restricted")
	}

	sh, err := h.sessions.GetForUse(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	defer sh.Release()

	if sh.Item() != nil {
		return nil, invalidState("user is already in a room")
	}

	rh, err := h.rooms.GetForUse(ctx, roomID, true)
	if err != nil {
		return nil, err
	}
	defer rh.Release()

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	room := rh.Item()
	if room == nil {
		room, err = h.loadRoom(ctx, roomID, userID)
		if err != nil {
			return nil, err
		}
		if err := rh.SetItem(room); err != nil {
			return nil, err
		}
	}

	if room.FindUser(userID) != nil {
		return nil, invalidOperation("user already present in room")
	}

	u := &RoomUser{UserID: userID, ConnectionID: connectionID, State: UserStateIdle}
	room.AddUser(u)

	if err := h.groups.AddToGroup(ctx, GroupName(roomID, false), connectionID); err != nil {
		room.RemoveUser(userID)
		if len(room.Users) == 0 {
			_ = rh.Destroy()
		}
		return nil, fmt.Errorf("join control group: %w", err)
	}

	if err := h.db.ReplaceParticipants(ctx, roomID, room.UserIDs()); err != nil {
		room.RemoveUser(userID)
		h.removeFromGroup(ctx, GroupName(roomID, false), connectionID)
		if len(room.Users) == 0 {
			_ = rh.Destroy()
		}
		return nil, fmt.Errorf("persist participants: %w", err)
	}

	if err := sh.SetItem(&UserSession{ConnectionID: connectionID, UserID: userID, RoomID: roomID}); err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetUserRoom(ctx, userID, roomID); err != nil {
			h.log.Warn().Err(err).Int32("user_id", userID).Msg("state cache update failed")
		}
	}

	h.publish(ctx, roomID, false, Event{Event: EventUserJoined, Data: UserEventData{UserID: userID}})

	h.log.Info().Int32("user_id", userID).Int64("room_id", roomID).Msg("user joined room")
	return room.Snapshot(), nil
}

// loadRoom fetches and validates the database room, builds the in-memory
// representation and initialises its queue.
func (h *Hub) loadRoom(ctx context.Context, roomID int64, joiningUserID int32) (*Room, error) {
	row, err := h.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, invalidState("room does not exist")
	}
	if row.Category != store.RoomCategoryRealtime {
		return nil, invalidState("room is not a realtime room")
	}
	if row.EndsAt != nil {
		return nil, invalidState("room has already ended")
	}
	if row.HostUserID != joiningUserID {
		return nil, invalidState("the room host must join before other users")
	}

	room := &Room{
		ID:    roomID,
		State: RoomStateOpen,
		Settings: RoomSettings{
			Name:      row.Name,
			QueueMode: QueueMode(row.QueueMode),
		},
	}
	if !ValidQueueMode(room.Settings.QueueMode) {
		room.Settings.QueueMode = QueueModeHostOnly
	}
	room.Queue = NewQueue(room, h.db, h.groups, h.log)

	if err := room.Queue.Initialise(ctx); err != nil {
		return nil, err
	}

	// Seed the beatmap fields from the current item so settings equality
	// behaves before the host's first change.
	if current := room.Queue.CurrentItem(); current != nil {
		room.Settings.BeatmapID = current.BeatmapID
		room.Settings.BeatmapChecksum = current.BeatmapChecksum
		room.Settings.RulesetID = current.RulesetID
		room.Settings.RequiredMods = current.RequiredMods
		room.Settings.AllowedMods = current.AllowedMods
	}

	if err := h.db.MarkRoomActive(ctx, roomID); err != nil {
		return nil, fmt.Errorf("mark room active: %w", err)
	}

	h.log.Info().Int64("room_id", roomID).Msg("room loaded")
	return room, nil
}

// LeaveRoom removes the caller from their current room and tears down the
// session. Rooms are destroyed when the last user leaves.
func (h *Hub) LeaveRoom(ctx context.Context, userID int32) error {
	sh, err := h.sessions.GetForUse(ctx, userID, false)
	if err != nil {
		return err
	}

	session := sh.Item()
	if session == nil {
		sh.Release()
		return ErrNotJoinedRoom
	}

	if err := h.leaveRoom(ctx, session); err != nil {
		sh.Release()
		return err
	}

	if h.cache != nil {
		if err := h.cache.ClearUserRoom(context.WithoutCancel(ctx), userID); err != nil {
			h.log.Warn().Err(err).Int32("user_id", userID).Msg("state cache clear failed")
		}
	}

	return sh.Destroy()
}

// HandleDisconnect runs LeaveRoom semantics on connection teardown. A user
// with no session is a no-op.
func (h *Hub) HandleDisconnect(ctx context.Context, userID int32) {
	if err := h.LeaveRoom(ctx, userID); err != nil {
		if err != ErrNotJoinedRoom {
			h.log.Warn().Err(err).Int32("user_id", userID).Msg("disconnect cleanup failed")
		}
		return
	}
	h.log.Info().Int32("user_id", userID).Msg("user disconnected")
}

func (h *Hub) leaveRoom(ctx context.Context, session *UserSession) error {
	rh, err := h.rooms.GetForUse(ctx, session.RoomID, false)
	if err != nil {
		return err
	}
	defer rh.Release()

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	room := rh.Item()
	if room == nil {
		// Room is already gone; nothing to unwind beyond the session.
		return nil
	}

	u := room.RemoveUser(session.UserID)
	if u == nil {
		return invalidOperation("session references a room the user is not in")
	}

	h.removeFromGroup(ctx, GroupName(room.ID, false), u.ConnectionID)
	if u.State.IsGameplay() {
		h.removeFromGroup(ctx, GroupName(room.ID, true), u.ConnectionID)
	}

	if len(room.Users) == 0 {
		if err := h.db.ReplaceParticipants(ctx, room.ID, nil); err != nil {
			h.log.Warn().Err(err).Int64("room_id", room.ID).Msg("clear participants failed")
		}
		if err := h.db.MarkRoomEnded(ctx, room.ID); err != nil {
			h.log.Warn().Err(err).Int64("room_id", room.ID).Msg("mark room ended failed")
		}
		h.publish(ctx, room.ID, false, Event{Event: EventUserLeft, Data: UserEventData{UserID: u.UserID}})
		h.log.Info().Int64("room_id", room.ID).Msg("room destroyed")
		return rh.Destroy()
	}

	if err := h.db.ReplaceParticipants(ctx, room.ID, room.UserIDs()); err != nil {
		h.log.Warn().Err(err).Int64("room_id", room.ID).Msg("persist participants failed")
	}

	if room.Host != nil && room.Host.UserID == u.UserID {
		newHost := room.Users[0]
		room.Host = newHost
		if err := h.db.UpdateRoomHost(ctx, room.ID, newHost.UserID); err != nil {
			h.log.Warn().Err(err).Int64("room_id", room.ID).Msg("persist host failed")
		}
		h.publish(ctx, room.ID, false, Event{Event: EventHostChanged, Data: UserEventData{UserID: newHost.UserID}})
	}

	// The departure may have been the last thing a phase was waiting on.
	if err := h.updateRoomStateIfRequired(ctx, room); err != nil {
		h.log.Warn().Err(err).Int64("room_id", room.ID).Msg("room state update after leave failed")
	}

	h.publish(ctx, room.ID, false, Event{Event: EventUserLeft, Data: UserEventData{UserID: u.UserID}})
	return nil
}

// TransferHost hands host privileges to another member.
func (h *Hub) TransferHost(ctx context.Context, userID int32, targetUserID int32) error {
	return h.withJoinedRoom(ctx, userID, func(ctx context.Context, _ *UserSession, room *Room) error {
		if room.Host == nil || room.Host.UserID != userID {
			return notHost("only the host may transfer host")
		}

		target := room.FindUser(targetUserID)
		if target == nil {
			return invalidState("target user is not in the room")
		}

		previous := room.Host
		room.Host = target
		if err := h.db.UpdateRoomHost(ctx, room.ID, target.UserID); err != nil {
			room.Host = previous
			return fmt.Errorf("persist host: %w", err)
		}

		h.publish(ctx, room.ID, false, Event{Event: EventHostChanged, Data: UserEventData{UserID: target.UserID}})
		return nil
	})
}

// ChangeState applies a client-requested user state transition.
func (h *Hub) ChangeState(ctx context.Context, userID int32, state UserState) error {
	return h.withJoinedRoom(ctx, userID, func(ctx context.Context, _ *UserSession, room *Room) error {
		u := room.FindUser(userID)
		if u == nil {
			return invalidOperation("user not present in room")
		}

		if u.State == state {
			return nil
		}
		if !clientTransitionAllowed(u.State, state) {
			return invalidStateChange(u.State, state)
		}

		h.setUserState(ctx, room, u, state)
		return h.updateRoomStateIfRequired(ctx, room)
	})
}

// StartMatch begins the load phase for every ready user. Host only.
func (h *Hub) StartMatch(ctx context.Context, userID int32) error {
	return h.withJoinedRoom(ctx, userID, func(ctx context.Context, _ *UserSession, room *Room) error {
		if room.Host == nil || room.Host.UserID != userID {
			return notHost("only the host may start the match")
		}
		if room.State != RoomStateOpen {
			return invalidState("match has already been started")
		}

		ready := room.usersIn(UserStateReady)
		if len(ready) == 0 {
			return invalidState("no users are ready")
		}
		if room.Host != nil && room.Host.State != UserStateReady {
			return invalidState("host is not ready")
		}

		current := room.Queue.CurrentItem()
		if current == nil {
			return invalidOperation("room has no current playlist item")
		}
		if err := h.db.ClearScores(ctx, current.ID); err != nil {
			return fmt.Errorf("clear scores: %w", err)
		}

		for _, u := range ready {
			h.setUserState(ctx, room, u, UserStateWaitingForLoad)
		}
		h.setRoomState(ctx, room, RoomStateWaitingForLoad)
		h.publish(ctx, room.ID, true, Event{Event: EventLoadRequested, Data: ItemIDEventData{PlaylistItemID: current.ID}})
		return nil
	})
}

// ChangeSettings swaps the room's settings record. Host only, lobby only.
func (h *Hub) ChangeSettings(ctx context.Context, userID int32, settings RoomSettings) error {
	return h.withJoinedRoom(ctx, userID, func(ctx context.Context, _ *UserSession, room *Room) error {
		if room.Host == nil || room.Host.UserID != userID {
			return notHost("only the host may change settings")
		}
		if room.State != RoomStateOpen {
			return invalidState("cannot change settings while the match is active")
		}

		// Clients cannot steer the current-item cursor.
		settings.PlaylistItemID = room.Settings.PlaylistItemID

		if room.Settings.Equals(settings) {
			return nil
		}

		if !ValidQueueMode(settings.QueueMode) {
			return invalidState("unknown queue mode")
		}
		if err := ValidateMods(settings.RulesetID, settings.RequiredMods, settings.AllowedMods); err != nil {
			return invalidState(err.Error())
		}

		checksum, err := h.db.GetBeatmapChecksum(ctx, settings.BeatmapID)
		if err != nil {
			return fmt.Errorf("lookup beatmap checksum: %w", err)
		}
		if checksum == "" || checksum != settings.BeatmapChecksum {
			return invalidState("beatmap is unknown or has been modified")
		}

		previous := room.Settings
		room.Settings = settings
		if err := h.db.UpdateRoomName(ctx, room.ID, settings.Name); err != nil {
			room.Settings = previous
			return fmt.Errorf("persist settings: %w", err)
		}

		for _, u := range room.usersIn(UserStateReady) {
			h.setUserState(ctx, room, u, UserStateIdle)
		}

		h.publish(ctx, room.ID, false, Event{Event: EventSettingsChanged, Data: SettingsEventData{Settings: room.Settings}})

		if previous.QueueMode != settings.QueueMode {
			if err := room.Queue.UpdateFromQueueModeChange(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddPlaylistItem enqueues a playlist item on behalf of the caller.
func (h *Hub) AddPlaylistItem(ctx context.Context, userID int32, item *PlaylistItem) error {
	return h.withJoinedRoom(ctx, userID, func(ctx context.Context, _ *UserSession, room *Room) error {
		u := room.FindUser(userID)
		if u == nil {
			return invalidOperation("user not present in room")
		}
		return room.Queue.AddItem(ctx, item, u)
	})
}

// withJoinedRoom resolves the caller's session and room, acquiring handles
// in the fixed session-then-room order, and runs fn under both.
func (h *Hub) withJoinedRoom(ctx context.Context, userID int32, fn func(ctx context.Context, session *UserSession, room *Room) error) error {
	sh, err := h.sessions.GetForUse(ctx, userID, false)
	if err != nil {
		return err
	}
	defer sh.Release()

	session := sh.Item()
	if session == nil {
		return ErrNotJoinedRoom
	}

	rh, err := h.rooms.GetForUse(ctx, session.RoomID, false)
	if err != nil {
		return err
	}
	defer rh.Release()

	room := rh.Item()
	if room == nil {
		return invalidOperation("session references a room that no longer exists")
	}

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	return fn(ctx, session, room)
}

// setUserState applies a user transition: announce to the control group,
// then reconcile gameplay group membership.
func (h *Hub) setUserState(ctx context.Context, room *Room, u *RoomUser, state UserState) {
	if u.State == state {
		return
	}
	wasGameplay := u.State.IsGameplay()
	u.State = state

	h.publish(ctx, room.ID, false, Event{Event: EventUserStateChanged, Data: UserStateEventData{UserID: u.UserID, State: state}})

	if state.IsGameplay() && !wasGameplay {
		h.addToGroup(ctx, GroupName(room.ID, true), u.ConnectionID)
	} else if wasGameplay && !state.IsGameplay() {
		h.removeFromGroup(ctx, GroupName(room.ID, true), u.ConnectionID)
	}
}

func (h *Hub) setRoomState(ctx context.Context, room *Room, state RoomState) {
	if room.State == state {
		return
	}
	room.State = state
	h.publish(ctx, room.ID, false, Event{Event: EventRoomStateChanged, Data: RoomStateEventData{State: state}})
}

// updateRoomStateIfRequired advances the room when no user blocks the
// current phase.
func (h *Hub) updateRoomStateIfRequired(ctx context.Context, room *Room) error {
	switch room.State {
	case RoomStateWaitingForLoad:
		if room.anyUserIn(UserStateWaitingForLoad) {
			return nil
		}
		loaded := room.usersIn(UserStateLoaded)
		if len(loaded) == 0 {
			// Everyone bailed during load; back to the lobby.
			h.setRoomState(ctx, room, RoomStateOpen)
			return nil
		}
		for _, u := range loaded {
			h.setUserState(ctx, room, u, UserStatePlaying)
		}
		h.setRoomState(ctx, room, RoomStatePlaying)
		h.publish(ctx, room.ID, false, Event{Event: EventMatchStarted})
		return nil

	case RoomStatePlaying:
		if room.anyUserIn(UserStatePlaying) {
			return nil
		}
		for _, u := range room.usersIn(UserStateFinishedPlay) {
			h.setUserState(ctx, room, u, UserStateResults)
		}

		current := room.Queue.CurrentItem()
		if current != nil {
			h.publish(ctx, room.ID, false, Event{Event: EventResultsReady, Data: ItemIDEventData{PlaylistItemID: current.ID}})
		}

		if err := room.Queue.FinishCurrentItem(ctx); err != nil {
			h.setRoomState(ctx, room, RoomStateOpen)
			return err
		}
		h.setRoomState(ctx, room, RoomStateOpen)
		return nil
	}
	return nil
}

func (h *Hub) publish(ctx context.Context, roomID int64, gameplay bool, event Event) {
	if err := h.groups.SendToGroup(ctx, GroupName(roomID, gameplay), event); err != nil {
		h.log.Warn().Err(err).Int64("room_id", roomID).Str("event", event.Event).Msg("broadcast failed")
	}
}

func (h *Hub) addToGroup(ctx context.Context, group, connectionID string) {
	if err := h.groups.AddToGroup(ctx, group, connectionID); err != nil {
		h.log.Warn().Err(err).Str("group", group).Msg("group join failed")
	}
}

func (h *Hub) removeFromGroup(ctx context.Context, group, connectionID string) {
	if err := h.groups.RemoveFromGroup(ctx, group, connectionID); err != nil {
		h.log.Warn().Err(err).Str("group", group).Msg("group leave failed")
	}
}
