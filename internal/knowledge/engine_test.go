// ABOUTME: Tests for the retrieval engine and index rebuild
// ABOUTME: Uses a real sqlite store with a deterministic fake embedder

package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosar/bosar-gateway/internal/store"
)

type fakeEmbedder struct {
	vectors   map[string][]float32
	available bool
	err       error
	calls     []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Available() bool { return f.available }

func newTestEngine(t *testing.T, embedder *fakeEmbedder) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewEngine(st, embedder, slog.Default()), st
}

func saveEntry(t *testing.T, st store.Store, botConfigID, text string, vec []float32, meta store.EntryMetadata) {
	t.Helper()
	require.NoError(t, st.SaveKnowledgeEntry(context.Background(), &store.KnowledgeEntry{
		ID:          uuid.New().String(),
		BotConfigID: botConfigID,
		Text:        text,
		Embedding:   vec,
		Metadata:    meta,
	}))
}

func testBotConfig(t *testing.T, st store.Store) *store.BotConfig {
	t.Helper()
	cfg := &store.BotConfig{
		ID:    uuid.New().String(),
		Name:  "support-bot",
		Model: "gpt-4o-mini",
	}
	require.NoError(t, st.CreateBotConfig(context.Background(), cfg))
	return cfg
}

func TestSearch_RanksAboveThreshold(t *testing.T) {
	embedder := &fakeEmbedder{
		available: true,
		vectors:   map[string][]float32{"refund policy": {1, 0, 0}},
	}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)

	saveEntry(t, st, cfg.ID, "exact match", []float32{1, 0, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})
	saveEntry(t, st, cfg.ID, "close match", []float32{0.9, 0.2, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})
	saveEntry(t, st, cfg.ID, "unrelated", []float32{0, 1, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})

	results := engine.Search(context.Background(), cfg.ID, "refund policy", 5, 0.7)

	require.Len(t, results, 2)
	assert.Equal(t, "exact match", results[0].Text)
	assert.Equal(t, 1.0, results[0].Similarity)
	assert.Equal(t, "close match", results[1].Text)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestSearch_RespectsLimit(t *testing.T) {
	embedder := &fakeEmbedder{available: true}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)

	for i := 0; i < 8; i++ {
		saveEntry(t, st, cfg.ID, "entry", []float32{1, 0, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})
	}

	results := engine.Search(context.Background(), cfg.ID, "anything", 3, 0.5)
	assert.Len(t, results, 3)
}

func TestSearch_SourceLabels(t *testing.T) {
	embedder := &fakeEmbedder{available: true}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)

	saveEntry(t, st, cfg.ID, "faq entry", []float32{1, 0, 0},
		store.EntryMetadata{Kind: store.EntryKindFAQ, Question: "How do refunds work?"})
	saveEntry(t, st, cfg.ID, "doc entry", []float32{1, 0, 0},
		store.EntryMetadata{Kind: store.EntryKindDocument, FileName: "handbook.md"})
	saveEntry(t, st, cfg.ID, "bare doc entry", []float32{1, 0, 0},
		store.EntryMetadata{Kind: store.EntryKindDocument})
	saveEntry(t, st, cfg.ID, "mystery entry", []float32{1, 0, 0},
		store.EntryMetadata{Kind: "other"})

	results := engine.Search(context.Background(), cfg.ID, "anything", 10, 0.5)
	require.Len(t, results, 4)

	labels := make(map[string]string)
	for _, r := range results {
		labels[r.Text] = r.Source
	}
	assert.Equal(t, "FAQ", labels["faq entry"])
	assert.Equal(t, "handbook.md", labels["doc entry"])
	assert.Equal(t, "Knowledge Base", labels["bare doc entry"])
	assert.Equal(t, "Knowledge Base", labels["mystery entry"])
}

func TestSearch_EmbedderUnavailable(t *testing.T) {
	embedder := &fakeEmbedder{available: false}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)
	saveEntry(t, st, cfg.ID, "entry", []float32{1, 0, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})

	results := engine.Search(context.Background(), cfg.ID, "anything", 5, 0.7)
	assert.Empty(t, results)
	assert.Empty(t, embedder.calls)
}

func TestSearch_EmbedError(t *testing.T) {
	embedder := &fakeEmbedder{available: true, err: errors.New("rate limited")}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)
	saveEntry(t, st, cfg.ID, "entry", []float32{1, 0, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})

	results := engine.Search(context.Background(), cfg.ID, "anything", 5, 0.7)
	assert.Empty(t, results)
}

func TestRebuild_FromFAQsAndDocuments(t *testing.T) {
	embedder := &fakeEmbedder{available: true}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)
	ctx := context.Background()

	require.NoError(t, st.CreateFAQ(ctx, &store.FAQ{
		ID:          uuid.New().String(),
		BotConfigID: cfg.ID,
		Question:    "How do refunds work?",
		Answer:      "Within 30 days.",
	}))
	require.NoError(t, st.CreateDocument(ctx, &store.Document{
		ID:          uuid.New().String(),
		BotConfigID: cfg.ID,
		FileName:    "handbook.md",
		Content:     "# Handbook",
		Chunks: []store.DocumentChunk{
			{Page: 1, Content: "Shipping takes 3 days.", Embedding: []float32{0.5, 0.5, 0}},
			{Page: 2, Content: "Returns need a receipt."},
		},
	}))

	stats, err := engine.Rebuild(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FAQs)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 3, stats.Total)

	// FAQ text uses the Q/A template
	assert.Contains(t, embedder.calls, "Q: How do refunds work?\nA: Within 30 days.")
	// the chunk with a stored embedding was not re-embedded
	assert.NotContains(t, embedder.calls, "Shipping takes 3 days.")
	assert.Contains(t, embedder.calls, "Returns need a receipt.")

	entries, err := st.ListKnowledgeEntries(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRebuild_SkipsFailedUnits(t *testing.T) {
	embedder := &fakeEmbedder{available: true, err: errors.New("rate limited")}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)
	ctx := context.Background()

	require.NoError(t, st.CreateFAQ(ctx, &store.FAQ{
		ID:          uuid.New().String(),
		BotConfigID: cfg.ID,
		Question:    "Q",
		Answer:      "A",
	}))
	require.NoError(t, st.CreateDocument(ctx, &store.Document{
		ID:          uuid.New().String(),
		BotConfigID: cfg.ID,
		FileName:    "handbook.md",
		Content:     "# Handbook",
		Chunks: []store.DocumentChunk{
			{Page: 1, Content: "has a stored vector", Embedding: []float32{0.5, 0.5, 0}},
			{Page: 2, Content: "needs embedding"},
		},
	}))

	stats, err := engine.Rebuild(ctx, cfg.ID)
	require.NoError(t, err)

	// the faq and the vectorless chunk fail; the stored vector still indexes
	assert.Equal(t, 0, stats.FAQs)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Total)

	entries, err := st.ListKnowledgeEntries(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "has a stored vector", entries[0].Text)
}

func TestRebuild_ReplacesExistingIndex(t *testing.T) {
	embedder := &fakeEmbedder{available: true}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)
	ctx := context.Background()

	saveEntry(t, st, cfg.ID, "stale entry", []float32{1, 0, 0}, store.EntryMetadata{Kind: store.EntryKindFAQ})

	require.NoError(t, st.CreateFAQ(ctx, &store.FAQ{
		ID:          uuid.New().String(),
		BotConfigID: cfg.ID,
		Question:    "Q",
		Answer:      "A",
	}))

	stats, err := engine.Rebuild(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	entries, err := st.ListKnowledgeEntries(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEqual(t, "stale entry", entries[0].Text)
}

func TestRebuild_EmbedderUnavailable(t *testing.T) {
	embedder := &fakeEmbedder{available: false}
	engine, st := newTestEngine(t, embedder)
	cfg := testBotConfig(t, st)

	_, err := engine.Rebuild(context.Background(), cfg.ID)
	assert.ErrorIs(t, err, ErrEmbedderUnavailable)
}
