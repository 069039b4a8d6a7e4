// ABOUTME: SQLite persistence for bot configs, FAQs and source documents
// ABOUTME: Read-mostly configuration consumed by the response orchestrator

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateBotConfig inserts a bot config
func (s *SQLiteStore) CreateBotConfig(ctx context.Context, cfg *BotConfig) error {
	tools, err := json.Marshal(cfg.Tools)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}

	query := `
		INSERT INTO bot_configs (id, name, model, temperature, system_instructions, tools, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.Name,
		cfg.Model,
		cfg.Temperature,
		cfg.SystemInstructions,
		string(tools),
		cfg.CreatedAt.UTC().Format(timeFormat),
		cfg.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting bot config: %w", err)
	}

	return nil
}

// GetBotConfig returns the bot config with the given id, or ErrNotFound
func (s *SQLiteStore) GetBotConfig(ctx context.Context, id string) (*BotConfig, error) {
	query := `
		SELECT id, name, model, temperature, system_instructions, tools, created_at, updated_at
		FROM bot_configs
		WHERE id = ?
	`

	cfg, err := scanBotConfig(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bot config: %w", err)
	}
	return cfg, nil
}

// LatestBotConfig returns the most recently created bot config, or ErrNotFound
func (s *SQLiteStore) LatestBotConfig(ctx context.Context) (*BotConfig, error) {
	query := `
		SELECT id, name, model, temperature, system_instructions, tools, created_at, updated_at
		FROM bot_configs
		ORDER BY created_at DESC
		LIMIT 1
	`

	cfg, err := scanBotConfig(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest bot config: %w", err)
	}
	return cfg, nil
}

// ListBotConfigs returns all bot configs, newest first
func (s *SQLiteStore) ListBotConfigs(ctx context.Context) ([]*BotConfig, error) {
	query := `
		SELECT id, name, model, temperature, system_instructions, tools, created_at, updated_at
		FROM bot_configs
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing bot configs: %w", err)
	}
	defer rows.Close()

	var cfgs []*BotConfig
	for rows.Next() {
		cfg, err := scanBotConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bot config: %w", err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, rows.Err()
}

// CreateFAQ inserts a FAQ entry for a bot config
func (s *SQLiteStore) CreateFAQ(ctx context.Context, faq *FAQ) error {
	query := `
		INSERT INTO faqs (id, bot_config_id, question, answer, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		faq.ID,
		faq.BotConfigID,
		faq.Question,
		faq.Answer,
		faq.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting faq: %w", err)
	}

	return nil
}

// ListFAQs returns all FAQs for a bot config in creation order
func (s *SQLiteStore) ListFAQs(ctx context.Context, botConfigID string) ([]*FAQ, error) {
	query := `
		SELECT id, bot_config_id, question, answer, created_at
		FROM faqs
		WHERE bot_config_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, botConfigID)
	if err != nil {
		return nil, fmt.Errorf("listing faqs: %w", err)
	}
	defer rows.Close()

	var faqs []*FAQ
	for rows.Next() {
		var faq FAQ
		var createdAtStr string
		if err := rows.Scan(&faq.ID, &faq.BotConfigID, &faq.Question, &faq.Answer, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning faq: %w", err)
		}
		faq.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		faqs = append(faqs, &faq)
	}
	return faqs, rows.Err()
}

// CreateDocument inserts a pre-chunked source document
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	chunks, err := json.Marshal(doc.Chunks)
	if err != nil {
		return fmt.Errorf("encoding chunks: %w", err)
	}

	query := `
		INSERT INTO documents (id, bot_config_id, file_name, content, chunks, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.ID,
		doc.BotConfigID,
		doc.FileName,
		doc.Content,
		string(chunks),
		doc.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	return nil
}

// ListDocuments returns all documents for a bot config
func (s *SQLiteStore) ListDocuments(ctx context.Context, botConfigID string) ([]*Document, error) {
	query := `
		SELECT id, bot_config_id, file_name, content, chunks, created_at
		FROM documents
		WHERE bot_config_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, botConfigID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var chunksJSON, createdAtStr string
		if err := rows.Scan(&doc.ID, &doc.BotConfigID, &doc.FileName, &doc.Content, &chunksJSON, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal([]byte(chunksJSON), &doc.Chunks); err != nil {
			return nil, fmt.Errorf("decoding chunks: %w", err)
		}
		doc.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func scanBotConfig(row rowScanner) (*BotConfig, error) {
	var cfg BotConfig
	var toolsJSON, createdAtStr, updatedAtStr string

	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Model,
		&cfg.Temperature,
		&cfg.SystemInstructions,
		&toolsJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(toolsJSON), &cfg.Tools); err != nil {
		return nil, fmt.Errorf("decoding tools: %w", err)
	}

	cfg.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	cfg.UpdatedAt, err = time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &cfg, nil
}
