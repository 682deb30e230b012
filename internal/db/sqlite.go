package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rowanvale/shopdesk/internal/models"
)

var (
	// ErrNotFound is returned when a conversation id does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrDuplicate is returned when creating a conversation whose id already exists.
	ErrDuplicate = errors.New("conversation already exists")
	// ErrNoConversation is returned when appending a message to a missing conversation.
	ErrNoConversation = errors.New("message references unknown conversation")
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
    text TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages(conversation_id, created_at, id);`

type Database struct {
	db *sql.DB
}

// New opens (or creates) the sqlite database at dbPath and applies the schema.
// Timestamps are stored as epoch milliseconds.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) CreateConversation(id string, createdAt time.Time) error {
	_, err := db.db.Exec(
		`INSERT INTO conversations (id, created_at) VALUES (?, ?)`,
		id, createdAt.UnixMilli(),
	)
	if isConstraint(err, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	return err
}

func (db *Database) AppendMessage(conversationID, sender, text string, createdAt time.Time) (int64, error) {
	var id int64
	err := db.db.QueryRow(
		`INSERT INTO messages (conversation_id, sender, text, created_at)
         VALUES (?, ?, ?, ?)
         RETURNING id`,
		conversationID, sender, text, createdAt.UnixMilli(),
	).Scan(&id)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return 0, fmt.Errorf("%w: %s", ErrNoConversation, conversationID)
	}
	return id, err
}

func (db *Database) GetConversation(id string) (*models.Conversation, error) {
	var createdAt int64
	err := db.db.QueryRow(
		`SELECT created_at FROM conversations WHERE id = ?`, id,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &models.Conversation{ID: id, CreatedAt: time.UnixMilli(createdAt)}, nil
}

// ListMessages returns messages for a conversation in ascending time order,
// ties broken by insertion order. A positive limit selects the most recent
// limit messages, still returned oldest first. limit <= 0 returns everything.
func (db *Database) ListMessages(conversationID string, limit int) ([]models.Message, error) {
	query := `
        SELECT id, conversation_id, sender, text, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at, id`
	args := []any{conversationID}

	if limit > 0 {
		query = `
        SELECT id, conversation_id, sender, text, created_at FROM (
            SELECT id, conversation_id, sender, text, created_at
            FROM messages
            WHERE conversation_id = ?
            ORDER BY created_at DESC, id DESC
            LIMIT ?
        ) ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func isConstraint(err error, codes ...sqlite3.ErrNoExtended) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	for _, code := range codes {
		if serr.ExtendedCode == code {
			return true
		}
	}
	return false
}
