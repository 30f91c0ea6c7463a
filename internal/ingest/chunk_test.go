package ingest

import (
	"strings"
	"testing"
)

func repeatWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ")
}

func TestChunkPages_ProducesOverlappingWindows(t *testing.T) {
	pages := []extractedPage{{Page: 1, Text: repeatWords(2500)}}
	chunks := chunkPages(pages)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple overlapping chunks for 2500 words, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Page != 1 {
			t.Fatalf("unexpected page %d", c.Page)
		}
	}
}

func TestChunkPages_NoShortTrailingChunk(t *testing.T) {
	// With step = 875 (target 1000, 12.5% overlap), a text of 1755 words
	// produces windows [0:1000] and [875:1755]: the window loop stops at the
	// window that reaches the end of the page, so a trailing window is always
	// longer than 125 words and no chunk falls below minMergeTokens.
	pages := []extractedPage{{Page: 1, Text: repeatWords(1755)}}
	chunks := chunkPages(pages)
	for _, c := range chunks {
		if wordCount(c.Text) < minMergeTokens {
			t.Fatalf("found an unmerged short chunk: %d words", wordCount(c.Text))
		}
	}
}

func TestChunkPages_EmptyPageProducesNoChunks(t *testing.T) {
	chunks := chunkPages([]extractedPage{{Page: 1, Text: ""}})
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty page, got %d", len(chunks))
	}
}

func TestTokenizeWithOffsets_OffsetsMatchSourceText(t *testing.T) {
	text := "hello   world\nfoo"
	words, offsets := tokenizeWithOffsets(text)
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d (%v)", len(words), words)
	}
	for i, w := range words {
		if text[offsets[i]:offsets[i]+len(w)] != w {
			t.Fatalf("offset %d does not point at word %q in %q", offsets[i], w, text)
		}
	}
}
