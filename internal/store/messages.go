// ABOUTME: SQLite persistence for chat messages
// ABOUTME: Ordered storage with cursor pagination within a conversation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// maxMessagePageSize caps a single page of messages
const maxMessagePageSize = 100

// SaveMessage inserts a message
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, text, role, author_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Text,
		string(msg.Role),
		nullableString(msg.AuthorUserID),
		msg.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return nil
}

// GetMessage returns the message with the given id, or ErrNotFound
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, text, role, author_user_id, created_at
		FROM messages
		WHERE id = ?
	`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a page of messages in chronological order plus the
// total message count for the conversation. Ordering is by created_at with
// ties broken by id so pagination is deterministic.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]*Message, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}

	query := `
		SELECT id, conversation_id, text, role, author_user_id, created_at
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}

	if q.AfterID != "" {
		cursor, err := s.GetMessage(ctx, q.AfterID)
		if err == nil {
			query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
			ts := cursor.CreatedAt.UTC().Format(timeFormat)
			args = append(args, ts, ts, cursor.ID)
		}
	}

	if q.BeforeID != "" {
		cursor, err := s.GetMessage(ctx, q.BeforeID)
		if err == nil {
			query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
			ts := cursor.CreatedAt.UTC().Format(timeFormat)
			args = append(args, ts, ts, cursor.ID)
		}
	}

	query += ` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	return msgs, total, nil
}

// RecentMessages returns the newest messages in chronological order,
// used as conversation history for the response orchestrator.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 20
	}

	// Fetch newest-first, then reverse into chronological order
	query := `
		SELECT id, conversation_id, text, role, author_user_id, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteMessage removes a message by id
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var role, createdAtStr string
	var authorUserID sql.NullString

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Text,
		&role,
		&authorUserID,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	msg.Role = MessageRole(role)
	if authorUserID.Valid {
		msg.AuthorUserID = &authorUserID.String
	}

	msg.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &msg, nil
}
