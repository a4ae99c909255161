// Package history provides PostgreSQL-backed storage for the chat log.
// Records are immutable once stored; they disappear only through explicit
// deletion, a full clear, or retention trimming (oldest-first).
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/parroquiasbdebarinas-lang/Server/internal/chat"
)

// Store manages chat messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a history store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a message.
func (s *Store) Append(ctx context.Context, m chat.Message) error {
	const query = `
		INSERT INTO chat_messages (id, username, body, ip, is_system, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query, m.ID, m.User, m.Text, m.IP, m.IsSystem, m.Timestamp)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Trim deletes the oldest messages so that at most keep remain.
func (s *Store) Trim(ctx context.Context, keep int) error {
	const query = `
		DELETE FROM chat_messages
		WHERE id NOT IN (
			SELECT id FROM chat_messages
			ORDER BY ts DESC, id DESC
			LIMIT $1
		)`

	if _, err := s.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("history: trim: %w", err)
	}
	return nil
}

// Recent returns the newest n messages in chronological order (oldest of the
// window first) and whether older messages exist beyond the window.
func (s *Store) Recent(ctx context.Context, n int) ([]chat.Message, bool, error) {
	const query = `
		SELECT id, username, body, ip, is_system, ts FROM (
			SELECT id, username, body, ip, is_system, ts
			FROM chat_messages
			ORDER BY ts DESC, id DESC
			LIMIT $1
		) newest
		ORDER BY ts ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, false, fmt.Errorf("history: recent query: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, false, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&total); err != nil {
		return nil, false, fmt.Errorf("history: count: %w", err)
	}
	return msgs, total > n, nil
}

// All returns every stored message, oldest-first.
func (s *Store) All(ctx context.Context) ([]chat.Message, error) {
	const query = `
		SELECT id, username, body, ip, is_system, ts
		FROM chat_messages
		ORDER BY ts ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: full query: %w", err)
	}
	return scanMessages(rows)
}

// FindByID returns the message with the given id, or nil if absent.
func (s *Store) FindByID(ctx context.Context, id string) (*chat.Message, error) {
	const query = `
		SELECT id, username, body, ip, is_system, ts
		FROM chat_messages
		WHERE id = $1`

	var m chat.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.User, &m.Text, &m.IP, &m.IsSystem, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: lookup: %w", err)
	}
	return &m, nil
}

// Delete removes a single message. Returns false if no record had that id.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("history: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("history: delete rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAll removes every message.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.User, &m.Text, &m.IP, &m.IsSystem, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return msgs, nil
}
