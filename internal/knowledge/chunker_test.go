// ABOUTME: Tests for the markdown chunker
// ABOUTME: Verifies heading splits, size caps and plain-text handling

package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMarkdown_SplitsOnHeadings(t *testing.T) {
	doc := `# Shipping

Orders ship within 3 business days.

# Returns

Returns are accepted within 30 days.

Refunds post within a week.`

	chunks := ChunkMarkdown(doc, 0)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Content, "# Shipping")
	assert.Contains(t, chunks[0].Content, "3 business days")
	assert.Contains(t, chunks[1].Content, "# Returns")
	assert.Contains(t, chunks[1].Content, "Refunds post within a week.")

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
}

func TestChunkMarkdown_PlainTextNoHeadings(t *testing.T) {
	chunks := ChunkMarkdown("Just a single paragraph of text.", 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Just a single paragraph of text.", chunks[0].Content)
}

func TestChunkMarkdown_SplitsOversizedSections(t *testing.T) {
	para := strings.Repeat("word ", 30)
	doc := "# Big\n\n" + para + "\n\n" + para + "\n\n" + para

	chunks := ChunkMarkdown(doc, 200)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 200)
	}

	// pages stay sequential across the split
	for i, c := range chunks {
		assert.Equal(t, i+1, c.Page)
	}
}

func TestChunkMarkdown_Empty(t *testing.T) {
	assert.Empty(t, ChunkMarkdown("", 0))
	assert.Empty(t, ChunkMarkdown("\n\n\n", 0))
}
