package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database at dbPath and applies migrations.
// Use ":memory:" for a throwaway database in tests.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; an in-memory database
	// also only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash, pic string) (*store.User, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO users (id, name, email, password_hash, pic, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, email, passwordHash, pic, s.now()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, pic, created_at
		FROM users
		WHERE ` + column + ` = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Pic,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", value, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SearchUsers matches name or email case-insensitively, excluding one user.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query, excludeID string) ([]*store.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, pic, created_at
		FROM users
		WHERE (name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\') AND id != ?
		ORDER BY name ASC
	`, pattern, pattern, excludeID)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Pic, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ==== ChatStore implementation ====

func directKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return "dm:" + userA + ":" + userB
}

// FindDirectChat returns the one-to-one chat between two users.
func (s *SQLiteStore) FindDirectChat(ctx context.Context, userA, userB string) (*store.Chat, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE direct_key = ?`, directKey(userA, userB)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("direct chat: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query direct chat: %w", err)
	}
	return s.GetChat(ctx, id)
}

// CreateDirectChat creates the one-to-one chat between two users.
// Handles deduplication via the direct key and adds both users as members.
func (s *SQLiteStore) CreateDirectChat(ctx context.Context, userA, userB string) (*store.Chat, error) {
	chat, err := s.FindDirectChat(ctx, userA, userB)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing chat: %w", err)
	}

	id := uuid.NewString()
	now := s.now()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chats (id, name, is_group, admin_id, direct_key, created_at, updated_at)
			VALUES (?, 'sender', 0, NULL, ?, ?, ?)
		`, id, directKey(userA, userB), now, now)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		return insertMembers(ctx, tx, id, []string{userA, userB})
	})
	if err != nil {
		return nil, err
	}

	return s.GetChat(ctx, id)
}

// CreateGroupChat creates a group chat; the admin joins after the invitees.
func (s *SQLiteStore) CreateGroupChat(ctx context.Context, name, adminID string, memberIDs []string) (*store.Chat, error) {
	id := uuid.NewString()
	now := s.now()
	members := lo.Uniq(append(lo.Without(memberIDs, adminID), adminID))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chats (id, name, is_group, admin_id, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?, ?)
		`, id, name, adminID, now, now)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		return insertMembers(ctx, tx, id, members)
	})
	if err != nil {
		return nil, err
	}

	return s.GetChat(ctx, id)
}

func insertMembers(ctx context.Context, tx *sql.Tx, chatID string, userIDs []string) error {
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_members (chat_id, user_id) VALUES (?, ?)
		`, chatID, userID); err != nil {
			return fmt.Errorf("add member %s: %w", userID, err)
		}
	}
	return nil
}

type chatRow struct {
	chat     store.Chat
	adminID  sql.NullString
	latestID sql.NullString
}

// GetChat retrieves a chat with members, admin and latest message populated.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	var row chatRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_group, admin_id, latest_message_id, created_at, updated_at
		FROM chats
		WHERE id = ?
	`, id).Scan(
		&row.chat.ID,
		&row.chat.Name,
		&row.chat.IsGroup,
		&row.adminID,
		&row.latestID,
		&row.chat.CreatedAt,
		&row.chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	chat := row.chat
	chat.Members, err = s.listMemberIdentities(ctx, id)
	if err != nil {
		return nil, err
	}

	if row.adminID.Valid {
		admin, err := s.GetUserByID(ctx, row.adminID.String)
		if err != nil {
			return nil, fmt.Errorf("load admin: %w", err)
		}
		identity := admin.Identity()
		chat.Admin = &identity
	}

	if row.latestID.Valid {
		latest, err := s.getMessage(ctx, row.latestID.String)
		if err != nil {
			return nil, fmt.Errorf("load latest message: %w", err)
		}
		chat.LatestMessage = latest
	}

	return &chat, nil
}

func (s *SQLiteStore) listMemberIdentities(ctx context.Context, chatID string) ([]store.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.pic
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = ?
		ORDER BY cm.rowid ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]store.Identity, 0)
	for rows.Next() {
		var m store.Identity
		if err := rows.Scan(&m.ID, &m.Name, &m.Pic); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// ListChats lists the user's chats, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]*store.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = ?
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	// Rows must be released before GetChat: the pool holds one connection.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close chat rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chats := make([]*store.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}

	return chats, nil
}

// RenameChat sets the chat display name.
func (s *SQLiteStore) RenameChat(ctx context.Context, chatID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats SET name = ?, updated_at = ? WHERE id = ?
	`, name, s.now(), chatID)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	return requireAffected(result, "chat "+chatID)
}

// AddMember adds a user to a chat.
func (s *SQLiteStore) AddMember(ctx context.Context, chatID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchChat(ctx, tx, chatID, s.now()); err != nil {
			return err
		}
		return insertMembers(ctx, tx, chatID, []string{userID})
	})
}

// RemoveMember removes a user from a chat.
func (s *SQLiteStore) RemoveMember(ctx context.Context, chatID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchChat(ctx, tx, chatID, s.now()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chat_members WHERE chat_id = ? AND user_id = ?
		`, chatID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
}

func touchChat(ctx context.Context, tx *sql.Tx, chatID string, now time.Time) error {
	result, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return requireAffected(result, "chat "+chatID)
}

// IsMember checks if user is a member of the chat.
func (s *SQLiteStore) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ?
	`, chatID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}

	return true, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message, seeds ReadBy with the sender and moves
// the chat's latest-message pointer.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, sender_id, content_kind, body, media_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.ChatID, msg.Sender.ID, msg.Content.Kind, msg.Content.Body(), msg.Content.MediaType, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)
		`, msg.ID, msg.Sender.ID, msg.CreatedAt); err != nil {
			return fmt.Errorf("seed read receipt: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE chats SET latest_message_id = ?, updated_at = ? WHERE id = ?
		`, msg.ID, msg.CreatedAt, msg.ChatID)
		if err != nil {
			return fmt.Errorf("update latest message: %w", err)
		}
		return requireAffected(result, "chat "+msg.ChatID)
	})
	if err != nil {
		return err
	}

	msg.ReadBy = []string{msg.Sender.ID}
	return nil
}

const messageColumns = `
	m.id, m.chat_id, u.id, u.name, u.pic, m.content_kind, m.body, m.media_type, m.created_at, m.seen_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var seenAt sql.NullTime
	var body string
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Sender.ID,
		&msg.Sender.Name,
		&msg.Sender.Pic,
		&msg.Content.Kind,
		&body,
		&msg.Content.MediaType,
		&msg.CreatedAt,
		&seenAt,
	)
	if err != nil {
		return nil, err
	}
	if msg.Content.Kind == store.ContentMedia {
		msg.Content.URL = body
	} else {
		msg.Content.Text = body
	}
	if seenAt.Valid {
		msg.SeenAt = &seenAt.Time
	}
	return &msg, nil
}

func (s *SQLiteStore) getMessage(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	readers, err := s.readers(ctx, `WHERE mr.message_id = ?`, id)
	if err != nil {
		return nil, err
	}
	msg.ReadBy = readers[msg.ID]
	return msg, nil
}

// ListMessages returns the chat's messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.seq ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close message rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	readers, err := s.readers(ctx, `JOIN messages m ON m.id = mr.message_id WHERE m.chat_id = ?`, chatID)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		msg.ReadBy = readers[msg.ID]
	}

	return messages, nil
}

// readers returns message id -> reader ids in the order they read it.
func (s *SQLiteStore) readers(ctx context.Context, where string, arg any) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mr.message_id, mr.user_id
		FROM message_reads mr
		`+where+`
		ORDER BY mr.rowid ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("query read receipts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return nil, fmt.Errorf("scan read receipt: %w", err)
		}
		out[messageID] = append(out[messageID], userID)
	}

	return out, rows.Err()
}

// MarkChatRead adds readerID to ReadBy of every unread message in the chat.
func (s *SQLiteStore) MarkChatRead(ctx context.Context, chatID, readerID string, now time.Time) (int, error) {
	var marked int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE messages SET seen_at = ?
			WHERE chat_id = ?
			  AND id NOT IN (SELECT message_id FROM message_reads WHERE user_id = ?)
		`, now, chatID, readerID)
		if err != nil {
			return fmt.Errorf("stamp seen_at: %w", err)
		}
		if marked, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if marked == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
			SELECT id, ?, ? FROM messages
			WHERE chat_id = ?
			  AND id NOT IN (SELECT message_id FROM message_reads WHERE user_id = ?)
		`, readerID, now, chatID, readerID); err != nil {
			return fmt.Errorf("insert read receipts: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return int(marked), nil
}

// ==== helpers ====

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
