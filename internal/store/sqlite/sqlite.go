package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dmaksimov/beatlink-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	restricted BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS beatmaps (
	id       INTEGER PRIMARY KEY,
	checksum TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT 'realtime',
	host_user_id      INTEGER NOT NULL,
	queue_mode        TEXT NOT NULL DEFAULT 'host_only',
	participant_count INTEGER NOT NULL DEFAULT 0,
	ends_at           DATETIME,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS playlist_items (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id          INTEGER NOT NULL,
	owner_id         INTEGER NOT NULL,
	beatmap_id       INTEGER NOT NULL,
	beatmap_checksum TEXT NOT NULL,
	ruleset_id       INTEGER NOT NULL,
	required_mods    TEXT NOT NULL DEFAULT '[]',
	allowed_mods     TEXT NOT NULL DEFAULT '[]',
	expired          BOOLEAN NOT NULL DEFAULT 0,
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);

CREATE TABLE IF NOT EXISTS scores (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	playlist_item_id INTEGER NOT NULL,
	user_id          INTEGER NOT NULL,
	total_score      INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (playlist_item_id) REFERENCES playlist_items(id)
);

CREATE INDEX IF NOT EXISTS idx_playlist_items_room ON playlist_items(room_id, id);
CREATE INDEX IF NOT EXISTS idx_scores_item ON scores(playlist_item_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed fixture rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, name, category, host_user_id, queue_mode, participant_count, ends_at, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Category,
		&room.HostUserID,
		&room.QueueMode,
		&room.ParticipantCount,
		&room.EndsAt,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room not found: %w", err)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// UpdateRoomName persists a room rename.
func (s *SQLiteStore) UpdateRoomName(ctx context.Context, id int64, name string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("update room name: %w", err)
	}
	return nil
}

// UpdateRoomHost persists a host reassignment.
func (s *SQLiteStore) UpdateRoomHost(ctx context.Context, id int64, userID int32) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET host_user_id = ? WHERE id = ?`, userID, id); err != nil {
		return fmt.Errorf("update room host: %w", err)
	}
	return nil
}

// MarkRoomActive clears the room's end timestamp.
func (s *SQLiteStore) MarkRoomActive(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET ends_at = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark room active: %w", err)
	}
	return nil
}

// MarkRoomEnded stamps the room as ended at the current time.
func (s *SQLiteStore) MarkRoomEnded(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET ends_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark room ended: %w", err)
	}
	return nil
}

// ReplaceParticipants swaps the room's participant set under one transaction
// and refreshes the denormalised participant count.
func (s *SQLiteStore) ReplaceParticipants(ctx context.Context, roomID int64, userIDs []int32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}

	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_participants (room_id, user_id) VALUES (?, ?)`, roomID, uid); err != nil {
			return fmt.Errorf("insert participant %d: %w", uid, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET participant_count = ? WHERE id = ?`, len(userIDs), roomID); err != nil {
		return fmt.Errorf("update participant count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit participants: %w", err)
	}
	return nil
}

// ==== PlaylistStore implementation ====

// GetAllPlaylistItems returns the room's items in insertion order.
func (s *SQLiteStore) GetAllPlaylistItems(ctx context.Context, roomID int64) ([]*store.PlaylistItem, error) {
	query := `
		SELECT id, room_id, owner_id, beatmap_id, beatmap_checksum, ruleset_id, required_mods, allowed_mods, expired
		FROM playlist_items
		WHERE room_id = ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query playlist items: %w", err)
	}
	defer rows.Close()

	var items []*store.PlaylistItem
	for rows.Next() {
		item, err := scanPlaylistItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlist items: %w", err)
	}

	return items, nil
}

// AddPlaylistItem inserts a new item and returns its assigned id.
func (s *SQLiteStore) AddPlaylistItem(ctx context.Context, item *store.PlaylistItem) (int64, error) {
	required, allowed, err := marshalMods(item)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO playlist_items (room_id, owner_id, beatmap_id, beatmap_checksum, ruleset_id, required_mods, allowed_mods, expired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		item.RoomID, item.OwnerID, item.BeatmapID, item.BeatmapChecksum,
		item.RulesetID, required, allowed, item.Expired)
	if err != nil {
		return 0, fmt.Errorf("insert playlist item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// UpdatePlaylistItem overwrites an existing item's content.
func (s *SQLiteStore) UpdatePlaylistItem(ctx context.Context, item *store.PlaylistItem) error {
	required, allowed, err := marshalMods(item)
	if err != nil {
		return err
	}

	query := `
		UPDATE playlist_items
		SET beatmap_id = ?, beatmap_checksum = ?, ruleset_id = ?, required_mods = ?, allowed_mods = ?, expired = ?
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query,
		item.BeatmapID, item.BeatmapChecksum, item.RulesetID, required, allowed, item.Expired, item.ID); err != nil {
		return fmt.Errorf("update playlist item: %w", err)
	}
	return nil
}

// ExpirePlaylistItem marks an item as expired.
func (s *SQLiteStore) ExpirePlaylistItem(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE playlist_items SET expired = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("expire playlist item: %w", err)
	}
	return nil
}

// ClearScores removes any scores recorded against a playlist item.
func (s *SQLiteStore) ClearScores(ctx context.Context, playlistItemID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scores WHERE playlist_item_id = ?`, playlistItemID); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}
	return nil
}

// ==== UserStore implementation ====

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int32) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, restricted FROM users WHERE id = ?`, id).Scan(
		&user.ID,
		&user.Username,
		&user.Restricted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// IsUserRestricted reports whether the user is barred from joining rooms.
// Unknown users are not restricted; the authenticated token vouches for them.
func (s *SQLiteStore) IsUserRestricted(ctx context.Context, userID int32) (bool, error) {
	var restricted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT restricted FROM users WHERE id = ?`, userID).Scan(&restricted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query user restriction: %w", err)
	}
	return restricted, nil
}

// GetBeatmapChecksum returns the known checksum for a beatmap, or an empty
// string if the beatmap is unknown.
func (s *SQLiteStore) GetBeatmapChecksum(ctx context.Context, beatmapID int32) (string, error) {
	var checksum string
	err := s.db.QueryRowContext(ctx,
		`SELECT checksum FROM beatmaps WHERE id = ?`, beatmapID).Scan(&checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query beatmap checksum: %w", err)
	}
	return checksum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaylistItem(row rowScanner) (*store.PlaylistItem, error) {
	var item store.PlaylistItem
	var required, allowed string
	if err := row.Scan(
		&item.ID,
		&item.RoomID,
		&item.OwnerID,
		&item.BeatmapID,
		&item.BeatmapChecksum,
		&item.RulesetID,
		&required,
		&allowed,
		&item.Expired,
	); err != nil {
		return nil, fmt.Errorf("scan playlist item: %w", err)
	}

	if err := json.Unmarshal([]byte(required), &item.RequiredMods); err != nil {
		return nil, fmt.Errorf("decode required mods: %w", err)
	}
	if err := json.Unmarshal([]byte(allowed), &item.AllowedMods); err != nil {
		return nil, fmt.Errorf("decode allowed mods: %w", err)
	}
	return &item, nil
}

func marshalMods(item *store.PlaylistItem) (required string, allowed string, err error) {
	req := item.RequiredMods
	if req == nil {
		req = []string{}
	}
	alw := item.AllowedMods
	if alw == nil {
		alw = []string{}
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("encode required mods: %w", err)
	}
	alwData, err := json.Marshal(alw)
	if err != nil {
		return "", "", fmt.Errorf("encode allowed mods: %w", err)
	}
	return string(reqData), string(alwData), nil
}
