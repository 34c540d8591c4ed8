package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one delivered chat message, as persisted.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Stream    string    `json:"stream"`
	Topic     string    `json:"topic"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore persists delivered messages. Messages are append-only; the
// webhook path never reads them back.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert persists a delivered message and returns its generated ID.
func (s *MessageStore) Insert(ctx context.Context, sender, stream, topic, body string) (string, error) {
	if sender == "" {
		return "", fmt.Errorf("sender is empty")
	}
	if stream == "" {
		return "", fmt.Errorf("stream is empty")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages(id, sender, stream, topic, body, created_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, sender, stream, topic, body, now)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// Recent returns up to limit messages, newest-first.
func (s *MessageStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, sender, stream, topic, body, created_at
FROM messages
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAtS string
		if err := rows.Scan(&m.ID, &m.Sender, &m.Stream, &m.Topic, &m.Body, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			m.CreatedAt = t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Count returns the total number of persisted messages.
func (s *MessageStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
