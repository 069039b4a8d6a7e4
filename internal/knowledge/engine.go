// ABOUTME: Knowledge retrieval engine over stored embeddings
// ABOUTME: Embeds queries and ranks entries by cosine similarity

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bosar/bosar-gateway/internal/store"
)

// Embedder converts text into an embedding vector. The OpenAI client
// implements this; tests use deterministic fakes.
type Embedder interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Available reports whether the embedder has credentials to operate.
	Available() bool
}

// Result is one ranked retrieval hit.
type Result struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
}

// Store is the subset of the persistence layer the engine needs.
type Store interface {
	ListKnowledgeEntries(ctx context.Context, botConfigID string) ([]*store.KnowledgeEntry, error)
	CountKnowledgeEntries(ctx context.Context, botConfigID string) (int, error)
	DeleteKnowledgeEntries(ctx context.Context, botConfigID string) error
	SaveKnowledgeEntry(ctx context.Context, entry *store.KnowledgeEntry) error
	ListFAQs(ctx context.Context, botConfigID string) ([]*store.FAQ, error)
	ListDocuments(ctx context.Context, botConfigID string) ([]*store.Document, error)
}

// Engine ranks stored knowledge entries against customer queries.
type Engine struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(st Store, embedder Embedder, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		embedder: embedder,
		logger:   logger.With("component", "knowledge"),
	}
}

// Search embeds the query and returns up to limit entries whose cosine
// similarity meets the threshold, best first. An unavailable embedder or
// an embedding failure yields empty results, never an error surfaced to
// the caller's conversation flow.
func (e *Engine) Search(ctx context.Context, botConfigID, query string, limit int, threshold float64) []Result {
	if !e.embedder.Available() {
		e.logger.Warn("embedder unavailable, returning no results")
		return nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Error("embedding query failed", "error", err)
		return nil
	}

	entries, err := e.store.ListKnowledgeEntries(ctx, botConfigID)
	if err != nil {
		e.logger.Error("listing knowledge entries failed", "bot_config_id", botConfigID, "error", err)
		return nil
	}

	type scored struct {
		entry *store.KnowledgeEntry
		sim   float64
	}

	hits := make([]scored, 0, len(entries))
	for _, entry := range entries {
		sim := cosineSimilarity(queryVec, entry.Embedding)
		if sim >= threshold {
			hits = append(hits, scored{entry: entry, sim: sim})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].sim > hits[j].sim
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			Text:       hit.entry.Text,
			Similarity: round2(hit.sim),
			Source:     sourceLabel(hit.entry.Metadata),
		}
	}

	e.logger.Debug("search complete",
		"bot_config_id", botConfigID,
		"candidates", len(entries),
		"results", len(results))

	return results
}

// sourceLabel renders the human-facing attribution for an entry.
func sourceLabel(meta store.EntryMetadata) string {
	switch meta.Kind {
	case store.EntryKindFAQ:
		return "FAQ"
	case store.EntryKindDocument:
		if meta.FileName != "" {
			return meta.FileName
		}
		return "Knowledge Base"
	default:
		return "Knowledge Base"
	}
}

// EntryCount reports how many entries are indexed for a bot config.
func (e *Engine) EntryCount(ctx context.Context, botConfigID string) (int, error) {
	n, err := e.store.CountKnowledgeEntries(ctx, botConfigID)
	if err != nil {
		return 0, fmt.Errorf("counting knowledge entries: %w", err)
	}
	return n, nil
}
