package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/olegsharov/converse-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
//
// The pool is limited to a single connection, which also means every
// transaction serializes writes: concurrent sends into one conversation can
// never lose an unread-counter increment.
type SQLiteStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'offline',
		last_seen     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		last_message_id INTEGER,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id INTEGER NOT NULL REFERENCES conversations(id),
		identity_id     INTEGER NOT NULL REFERENCES identities(id),
		unread_count    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (conversation_id, identity_id)
	);`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		owner_id   INTEGER NOT NULL REFERENCES identities(id),
		private    BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS room_members (
		room_id     INTEGER NOT NULL REFERENCES rooms(id),
		identity_id INTEGER NOT NULL REFERENCES identities(id),
		joined_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (room_id, identity_id)
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		container_kind TEXT NOT NULL,
		container_id   INTEGER NOT NULL,
		sender_id      INTEGER NOT NULL REFERENCES identities(id),
		content        TEXT NOT NULL,
		type           TEXT NOT NULL DEFAULT 'text',
		state          TEXT NOT NULL DEFAULT 'active',
		reply_to       INTEGER,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		edited_at      DATETIME,
		deleted_at     DATETIME
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_container ON messages(container_kind, container_id, id);`,
	`CREATE TABLE IF NOT EXISTS message_receipts (
		message_id  INTEGER NOT NULL REFERENCES messages(id),
		identity_id INTEGER NOT NULL REFERENCES identities(id),
		read_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (message_id, identity_id)
	);`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		message_id  INTEGER NOT NULL REFERENCES messages(id),
		identity_id INTEGER NOT NULL REFERENCES identities(id),
		emoji       TEXT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (message_id, identity_id, emoji)
	);`,
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== IdentityStore implementation ====

// CreateIdentity creates a new identity with hashed password.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, username, passwordHash string) (*store.Identity, error) {
	query := `
		INSERT INTO identities (username, password_hash, status)
		VALUES (?, ?, 'offline')
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetIdentityByID(ctx, id)
}

// GetIdentityByID retrieves an identity by id.
func (s *SQLiteStore) GetIdentityByID(ctx context.Context, id int64) (*store.Identity, error) {
	query := `
		SELECT id, username, password_hash, status, last_seen, created_at
		FROM identities
		WHERE id = ?
	`
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, id))
}

// GetIdentityByUsername retrieves an identity by username.
func (s *SQLiteStore) GetIdentityByUsername(ctx context.Context, username string) (*store.Identity, error) {
	query := `
		SELECT id, username, password_hash, status, last_seen, created_at
		FROM identities
		WHERE username = ?
	`
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanIdentity(row *sql.Row) (*store.Identity, error) {
	var ident store.Identity
	err := row.Scan(
		&ident.ID,
		&ident.Username,
		&ident.PasswordHash,
		&ident.Status,
		&ident.LastSeen,
		&ident.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return &ident, nil
}

// UpdatePresence updates the durable presence status and last-seen time.
func (s *SQLiteStore) UpdatePresence(ctx context.Context, id int64, status store.PresenceStatus, lastSeen time.Time) error {
	query := `
		UPDATE identities SET status = ?, last_seen = ? WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), lastSeen.UTC(), id)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SearchIdentities searches identities by username substring.
func (s *SQLiteStore) SearchIdentities(ctx context.Context, query string) ([]*store.Identity, error) {
	stmt := `
		SELECT id, username, password_hash, status, last_seen, created_at
		FROM identities
		WHERE username LIKE ?
		ORDER BY username
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, stmt, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	defer rows.Close()

	var identities []*store.Identity
	for rows.Next() {
		var ident store.Identity
		if err := rows.Scan(
			&ident.ID,
			&ident.Username,
			&ident.PasswordHash,
			&ident.Status,
			&ident.LastSeen,
			&ident.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, &ident)
	}
	return identities, rows.Err()
}

// ==== ConversationStore implementation ====

// CreateConversation creates a conversation between the given participants.
func (s *SQLiteStore) CreateConversation(ctx context.Context, participants []int64) (*store.Conversation, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("conversation needs at least two participants")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT INTO conversations DEFAULT VALUES`)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, identity_id, unread_count) VALUES (?, ?, 0)`,
			id, p,
		); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetConversationByID(ctx, id)
}

// GetConversationByID retrieves a conversation with participants and unread counts.
func (s *SQLiteStore) GetConversationByID(ctx context.Context, id int64) (*store.Conversation, error) {
	var conv store.Conversation
	var lastMessageID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, last_message_id, created_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &lastMessageID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	if lastMessageID.Valid {
		conv.LastMessageID = &lastMessageID.Int64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_id, unread_count FROM conversation_participants WHERE conversation_id = ? ORDER BY identity_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	conv.UnreadCounts = make(map[int64]int)
	for rows.Next() {
		var identityID int64
		var unread int
		if err := rows.Scan(&identityID, &unread); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, identityID)
		conv.UnreadCounts[identityID] = unread
	}
	return &conv, rows.Err()
}

// ListConversations lists conversations the identity participates in.
func (s *SQLiteStore) ListConversations(ctx context.Context, identityID int64) ([]*store.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id FROM conversation_participants WHERE identity_id = ? ORDER BY conversation_id DESC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversations := make([]*store.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetConversationByID(ctx, id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// IncrementUnread adds one to the unread counter of every participant except
// exceptIdentityID.
func (s *SQLiteStore) IncrementUnread(ctx context.Context, conversationID, exceptIdentityID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND identity_id <> ?
	`, conversationID, exceptIdentityID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// ResetUnread sets the identity's unread counter for the conversation to zero.
func (s *SQLiteStore) ResetUnread(ctx context.Context, conversationID, identityID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversation_participants SET unread_count = 0 WHERE conversation_id = ? AND identity_id = ?`,
		conversationID, identityID,
	)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a room owned by ownerID; the owner becomes a member.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, ownerID int64, private bool) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, owner_id, private) VALUES (?, ?, ?)`,
		name, ownerID, private,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, identity_id) VALUES (?, ?)`,
		id, ownerID,
	); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoomByID(ctx, id)
}

// GetRoomByID retrieves a room with its member list.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	var room store.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, private, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Name, &room.OwnerID, &room.Private, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_id FROM room_members WHERE room_id = ? ORDER BY identity_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID int64
		if err := rows.Scan(&memberID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		room.Members = append(room.Members, memberID)
	}
	return &room, rows.Err()
}

// ListRooms lists public rooms plus private rooms the identity belongs to.
func (s *SQLiteStore) ListRooms(ctx context.Context, identityID int64) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.id
		FROM rooms r
		LEFT JOIN room_members m ON m.room_id = r.id AND m.identity_id = ?
		WHERE r.private = 0 OR m.identity_id IS NOT NULL
		ORDER BY r.id
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]*store.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.GetRoomByID(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// AddMember adds an identity to the room.
func (s *SQLiteStore) AddMember(ctx context.Context, roomID, identityID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, identity_id) VALUES (?, ?)`,
		roomID, identityID,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsMember checks room membership.
func (s *SQLiteStore) IsMember(ctx context.Context, roomID, identityID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE room_id = ? AND identity_id = ?`,
		roomID, identityID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ==== MessageStore implementation ====

// CreateRoomMessage persists a message sent into a room.
func (s *SQLiteStore) CreateRoomMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (container_kind, container_id, sender_id, content, type, state, reply_to, created_at)
		VALUES ('room', ?, ?, ?, ?, 'active', ?, ?)
	`, msg.ContainerID, msg.SenderID, msg.Content, string(msg.Type), msg.ReplyTo, msg.CreatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert room message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetMessageByID(ctx, id)
}

// CreateConversationMessage persists a conversation message, advances the
// last-message pointer and increments the other participants' unread counters
// in a single transaction.
func (s *SQLiteStore) CreateConversationMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (container_kind, container_id, sender_id, content, type, state, reply_to, created_at)
		VALUES ('conversation', ?, ?, ?, ?, 'active', ?, ?)
	`, msg.ContainerID, msg.SenderID, msg.Content, string(msg.Type), msg.ReplyTo, msg.CreatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert conversation message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_id = ? WHERE id = ?`,
		id, msg.ContainerID,
	); err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND identity_id <> ?
	`, msg.ContainerID, msg.SenderID); err != nil {
		return nil, fmt.Errorf("increment unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetMessageByID(ctx, id)
}

// GetMessageByID retrieves a message with receipts and reactions.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	var msg store.Message
	var replyTo sql.NullInt64
	var editedAt, deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, container_kind, container_id, sender_id, content, type, state, reply_to, created_at, edited_at, deleted_at
		FROM messages
		WHERE id = ?
	`, id).Scan(
		&msg.ID,
		&msg.ContainerKind,
		&msg.ContainerID,
		&msg.SenderID,
		&msg.Content,
		&msg.Type,
		&msg.State,
		&replyTo,
		&msg.CreatedAt,
		&editedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if replyTo.Valid {
		msg.ReplyTo = &replyTo.Int64
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}

	if msg.ReadBy, err = s.listReceipts(ctx, id); err != nil {
		return nil, err
	}
	if msg.Reactions, err = s.listReactions(ctx, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SQLiteStore) listReceipts(ctx context.Context, messageID int64) ([]store.ReadReceipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_id, read_at FROM message_receipts WHERE message_id = ? ORDER BY read_at, identity_id`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []store.ReadReceipt
	for rows.Next() {
		var r store.ReadReceipt
		if err := rows.Scan(&r.IdentityID, &r.ReadAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (s *SQLiteStore) listReactions(ctx context.Context, messageID int64) ([]store.Reaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_id, emoji, created_at FROM message_reactions WHERE message_id = ? ORDER BY created_at, identity_id, emoji`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	var reactions []store.Reaction
	for rows.Next() {
		var r store.Reaction
		if err := rows.Scan(&r.IdentityID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

// UpdateMessageIf applies content, state and lifecycle timestamps from msg
// only while the stored state is one of fromStates.
func (s *SQLiteStore) UpdateMessageIf(ctx context.Context, msg *store.Message, fromStates ...store.MessageState) error {
	if len(fromStates) == 0 {
		return fmt.Errorf("update message: no source states")
	}

	placeholders := make([]string, len(fromStates))
	args := []any{msg.Content, string(msg.State), msg.EditedAt, msg.DeletedAt, msg.ID}
	for i, st := range fromStates {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
		UPDATE messages
		SET content = ?, state = ?, edited_at = ?, deleted_at = ?
		WHERE id = ? AND state IN (%s)
	`, strings.Join(placeholders, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing message from a lost race.
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, msg.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check message: %w", err)
		}
		return store.ErrConflict
	}
	return nil
}

// ToggleReaction removes an existing (identity, emoji) reaction or appends one.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, messageID, identityID int64, emoji string) ([]store.Reaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id = ? AND identity_id = ? AND emoji = ?`,
		messageID, identityID, emoji,
	)
	if err != nil {
		return nil, fmt.Errorf("delete reaction: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_reactions (message_id, identity_id, emoji) VALUES (?, ?, ?)`,
			messageID, identityID, emoji,
		); err != nil {
			return nil, fmt.Errorf("insert reaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.listReactions(ctx, messageID)
}

// AddReadReceipts appends a receipt per message for the identity. Messages
// the identity authored, or already receipted, are skipped.
func (s *SQLiteStore) AddReadReceipts(ctx context.Context, identityID int64, messageIDs []int64, readAt time.Time) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var receipted []int64
	for _, id := range messageIDs {
		result, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_receipts (message_id, identity_id, read_at)
			SELECT id, ?, ? FROM messages WHERE id = ? AND sender_id <> ?
		`, identityID, readAt.UTC(), id, identityID)
		if err != nil {
			return nil, fmt.Errorf("insert receipt: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			receipted = append(receipted, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return receipted, nil
}

// ListMessages retrieves container messages with pagination, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, kind store.ContainerKind, containerID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id FROM messages
		WHERE container_kind = ? AND container_id = ?
	`
	args := []any{string(kind), containerID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	messages := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.GetMessageByID(ctx, id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
