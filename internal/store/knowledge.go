// ABOUTME: SQLite persistence for knowledge entries and takeover records
// ABOUTME: Embeddings stored as JSON arrays, rebuilt wholesale per bot config

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SaveKnowledgeEntry inserts a knowledge entry
func (s *SQLiteStore) SaveKnowledgeEntry(ctx context.Context, entry *KnowledgeEntry) error {
	embedding, err := json.Marshal(entry.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO knowledge_entries (id, bot_config_id, text, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.BotConfigID,
		entry.Text,
		string(embedding),
		string(metadata),
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting knowledge entry: %w", err)
	}

	return nil
}

// ListKnowledgeEntries returns every entry scoped to a bot config
func (s *SQLiteStore) ListKnowledgeEntries(ctx context.Context, botConfigID string) ([]*KnowledgeEntry, error) {
	query := `
		SELECT id, bot_config_id, text, embedding, metadata, created_at
		FROM knowledge_entries
		WHERE bot_config_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, botConfigID)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []*KnowledgeEntry
	for rows.Next() {
		var entry KnowledgeEntry
		var embeddingJSON, metadataJSON, createdAtStr string
		if err := rows.Scan(&entry.ID, &entry.BotConfigID, &entry.Text, &embeddingJSON, &metadataJSON, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning knowledge entry: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &entry.Embedding); err != nil {
			return nil, fmt.Errorf("decoding embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
		entry.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// DeleteKnowledgeEntries removes every entry for a bot config.
// Called at the start of a rebuild; deleting zero rows is not an error.
func (s *SQLiteStore) DeleteKnowledgeEntries(ctx context.Context, botConfigID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_entries WHERE bot_config_id = ?`, botConfigID)
	if err != nil {
		return fmt.Errorf("deleting knowledge entries: %w", err)
	}
	return nil
}

// CountKnowledgeEntries returns the number of entries for a bot config
func (s *SQLiteStore) CountKnowledgeEntries(ctx context.Context, botConfigID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_entries WHERE bot_config_id = ?`, botConfigID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting knowledge entries: %w", err)
	}
	return count, nil
}

// CreateTakeover appends a takeover record to the audit trail
func (s *SQLiteStore) CreateTakeover(ctx context.Context, rec *TakeoverRecord) error {
	query := `
		INSERT INTO takeovers (id, conversation_id, triggered_by_user_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ConversationID,
		rec.TriggeredByUserID,
		rec.Reason,
		rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting takeover: %w", err)
	}

	return nil
}

// ListTakeovers returns takeover records for a conversation, newest first
func (s *SQLiteStore) ListTakeovers(ctx context.Context, conversationID string) ([]*TakeoverRecord, error) {
	query := `
		SELECT id, conversation_id, triggered_by_user_id, reason, created_at
		FROM takeovers
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing takeovers: %w", err)
	}
	defer rows.Close()

	var recs []*TakeoverRecord
	for rows.Next() {
		var rec TakeoverRecord
		var createdAtStr string
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.TriggeredByUserID, &rec.Reason, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning takeover: %w", err)
		}
		rec.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
