// ABOUTME: SQLite persistence for conversations
// ABOUTME: Creation, lookup, status updates and activity counters

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateConversation inserts a new conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, customer_id, assigned_user_id, bot_config_id, status,
			customer_ip, message_count, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lastMessageAt any
	if conv.LastMessageAt != nil {
		lastMessageAt = conv.LastMessageAt.UTC().Format(timeFormat)
	}

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.CustomerID,
		nullableString(conv.AssignedUserID),
		conv.BotConfigID,
		string(conv.Status),
		nullableString(conv.CustomerIP),
		conv.MessageCount,
		lastMessageAt,
		conv.CreatedAt.UTC().Format(timeFormat),
		conv.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	return nil
}

// GetConversation returns the conversation with the given id, or ErrNotFound
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, customer_id, assigned_user_id, bot_config_id, status,
			customer_ip, message_count, last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// FindActiveConversation returns the most recently updated conversation for
// the customer/bot pair that is still open to new traffic (automated or human).
// Pending conversations are not reused; an escalation is already in flight.
func (s *SQLiteStore) FindActiveConversation(ctx context.Context, customerID, botConfigID string) (*Conversation, error) {
	query := `
		SELECT id, customer_id, assigned_user_id, bot_config_id, status,
			customer_ip, message_count, last_message_at, created_at, updated_at
		FROM conversations
		WHERE customer_id = ? AND bot_config_id = ? AND status IN (?, ?)
		ORDER BY updated_at DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, customerID, botConfigID,
		string(StatusAutomated), string(StatusHuman))
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered by most recent activity
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, customer_id, assigned_user_id, bot_config_id, status,
			customer_ip, message_count, last_message_at, created_at, updated_at
		FROM conversations
		ORDER BY COALESCE(last_message_at, updated_at) DESC, updated_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// SetConversationStatus updates the status and, when non-nil, the assignee.
// Passing a nil assignedUserID leaves the existing assignee untouched.
func (s *SQLiteStore) SetConversationStatus(ctx context.Context, id string, status ConversationStatus, assignedUserID *string) error {
	now := time.Now().UTC().Format(timeFormat)

	var result sql.Result
	var err error
	if assignedUserID != nil {
		result, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET status = ?, assigned_user_id = ?, updated_at = ? WHERE id = ?`,
			string(status), *assignedUserID, now, id)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
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

// SetConversationIP records the customer's last observed IP (last writer wins)
func (s *SQLiteStore) SetConversationIP(ctx context.Context, id, ip string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET customer_ip = ? WHERE id = ?`, ip, id)
	if err != nil {
		return fmt.Errorf("updating conversation ip: %w", err)
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

// BumpConversationActivity increments the message counter and advances the
// activity timestamps. Uses a relative UPDATE so concurrent bumps never lose
// an increment.
func (s *SQLiteStore) BumpConversationActivity(ctx context.Context, id string, at time.Time) error {
	ts := at.UTC().Format(timeFormat)

	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`, ts, ts, id)
	if err != nil {
		return fmt.Errorf("bumping conversation activity: %w", err)
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

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var assignedUserID, customerIP, lastMessageAtStr sql.NullString
	var status, createdAtStr, updatedAtStr string

	err := row.Scan(
		&conv.ID,
		&conv.CustomerID,
		&assignedUserID,
		&conv.BotConfigID,
		&status,
		&customerIP,
		&conv.MessageCount,
		&lastMessageAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	conv.Status = ConversationStatus(status)
	if assignedUserID.Valid {
		conv.AssignedUserID = &assignedUserID.String
	}
	if customerIP.Valid {
		conv.CustomerIP = &customerIP.String
	}
	if lastMessageAtStr.Valid {
		t, err := time.Parse(timeFormat, lastMessageAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}
		conv.LastMessageAt = &t
	}

	conv.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}
