// ABOUTME: Knowledge index rebuild from FAQs and document chunks
// ABOUTME: Drops and recreates all entries for a bot config

package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bosar/bosar-gateway/internal/store"
)

// ErrEmbedderUnavailable is returned by Rebuild when no embedding
// credentials are configured.
var ErrEmbedderUnavailable = errors.New("embedder unavailable")

// RebuildStats summarizes one rebuild run.
type RebuildStats struct {
	FAQs   int `json:"faqs"`
	Chunks int `json:"chunks"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Rebuild deletes every knowledge entry for the bot config and recreates
// the index from its FAQs and document chunks. FAQ text is embedded fresh;
// document chunks reuse a stored embedding when one is present. A unit
// that fails to embed is skipped and counted, the rest still index.
func (e *Engine) Rebuild(ctx context.Context, botConfigID string) (*RebuildStats, error) {
	if !e.embedder.Available() {
		return nil, ErrEmbedderUnavailable
	}

	if err := e.store.DeleteKnowledgeEntries(ctx, botConfigID); err != nil {
		return nil, fmt.Errorf("clearing knowledge entries: %w", err)
	}

	stats := &RebuildStats{}

	faqs, err := e.store.ListFAQs(ctx, botConfigID)
	if err != nil {
		return nil, fmt.Errorf("listing faqs: %w", err)
	}
	for _, faq := range faqs {
		text := fmt.Sprintf("Q: %s\nA: %s", faq.Question, faq.Answer)
		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			e.logger.Warn("embedding faq failed", "faq_id", faq.ID, "error", err)
			stats.Failed++
			continue
		}
		entry := &store.KnowledgeEntry{
			ID:          uuid.New().String(),
			BotConfigID: botConfigID,
			Text:        text,
			Embedding:   vec,
			Metadata: store.EntryMetadata{
				Kind:     store.EntryKindFAQ,
				FAQID:    faq.ID,
				Question: faq.Question,
			},
		}
		if err := e.store.SaveKnowledgeEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("saving faq entry: %w", err)
		}
		stats.FAQs++
	}

	docs, err := e.store.ListDocuments(ctx, botConfigID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	for _, doc := range docs {
		for _, chunk := range doc.Chunks {
			vec := chunk.Embedding
			if len(vec) == 0 {
				vec, err = e.embedder.Embed(ctx, chunk.Content)
				if err != nil {
					e.logger.Warn("embedding chunk failed",
						"document_id", doc.ID, "page", chunk.Page, "error", err)
					stats.Failed++
					continue
				}
			}
			entry := &store.KnowledgeEntry{
				ID:          uuid.New().String(),
				BotConfigID: botConfigID,
				Text:        chunk.Content,
				Embedding:   vec,
				Metadata: store.EntryMetadata{
					Kind:       store.EntryKindDocument,
					DocumentID: doc.ID,
					FileName:   doc.FileName,
					Page:       chunk.Page,
				},
			}
			if err := e.store.SaveKnowledgeEntry(ctx, entry); err != nil {
				return nil, fmt.Errorf("saving document entry: %w", err)
			}
			stats.Chunks++
		}
	}

	stats.Total = stats.FAQs + stats.Chunks
	e.logger.Info("knowledge index rebuilt",
		"bot_config_id", botConfigID,
		"faqs", stats.FAQs,
		"chunks", stats.Chunks,
		"failed", stats.Failed)

	return stats, nil
}
