// ABOUTME: Markdown document chunker for knowledge indexing
// ABOUTME: Splits source text on headings via the goldmark AST

package knowledge

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/bosar/bosar-gateway/internal/store"
)

// defaultMaxChunkLen caps the size of a single chunk in bytes. Sections
// longer than this are split on paragraph boundaries.
const defaultMaxChunkLen = 2000

// ChunkMarkdown splits a markdown document into passages suitable for
// embedding. Each heading starts a new chunk with the heading text kept as
// context; oversized sections are split further on blank lines. maxLen <= 0
// uses the default cap. Plain text without headings still chunks by size.
func ChunkMarkdown(content string, maxLen int) []store.DocumentChunk {
	if maxLen <= 0 {
		maxLen = defaultMaxChunkLen
	}

	source := []byte(content)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var sections []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sections = append(sections, s)
		}
		current.Reset()
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if _, isHeading := node.(*ast.Heading); isHeading {
			flush()
		}
		seg := blockText(source, node)
		if seg == "" {
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(seg)
	}
	flush()

	var chunks []store.DocumentChunk
	page := 1
	for _, section := range sections {
		for _, part := range splitBySize(section, maxLen) {
			chunks = append(chunks, store.DocumentChunk{
				Page:    page,
				Content: part,
			})
			page++
		}
	}
	return chunks
}

// blockText extracts the raw source text covered by a top-level block node.
func blockText(source []byte, node ast.Node) string {
	lines := node.Lines()
	if lines == nil || lines.Len() == 0 {
		// container blocks (lists, quotes) keep their line info on children
		var b strings.Builder
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			if s := blockText(source, child); s != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(s)
			}
		}
		return strings.TrimSpace(b.String())
	}

	first := lines.At(0)
	last := lines.At(lines.Len() - 1)
	return strings.TrimSpace(string(source[first.Start:last.Stop]))
}

// splitBySize breaks an oversized section on blank-line boundaries,
// packing paragraphs greedily up to maxLen.
func splitBySize(section string, maxLen int) []string {
	if len(section) <= maxLen {
		return []string{section}
	}

	paragraphs := strings.Split(section, "\n\n")
	var parts []string
	var b strings.Builder

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 && b.Len()+len(p)+2 > maxLen {
			parts = append(parts, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}
