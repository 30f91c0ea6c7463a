package ingest

import "strings"

// targetChunkTokens and overlapFraction bound the chunk windowing step.
const (
	targetChunkTokens = 1000
	minChunkTokens    = 800
	maxChunkTokens    = 1200
	overlapFraction   = 0.125 // midpoint of the 10-15% overlap band
	minMergeTokens    = 40    // chunks below this are merged into a neighbour
)

// extractedPage is one page (or page-equivalent) of decoded text, carried
// through from extraction into chunking so offsets stay page-relative.
type extractedPage struct {
	Page int
	Text string
}

// rawChunk is a chunk before embedding: text plus the offsets and page it
// was drawn from.
type rawChunk struct {
	Page        int
	OffsetBegin int
	OffsetEnd   int
	Text        string
}

// chunkPages splits pages into overlapping windows of approximately
// targetChunkTokens words (a token is approximated as one whitespace-
// delimited word, consistent with the coarse token budgeting used
// elsewhere in this pipeline), merging any trailing window that falls
// below minMergeTokens into its predecessor.
func chunkPages(pages []extractedPage) []rawChunk {
	var chunks []rawChunk
	for _, page := range pages {
		words, offsets := tokenizeWithOffsets(page.Text)
		if len(words) == 0 {
			continue
		}

		step := int(float64(targetChunkTokens) * (1 - overlapFraction))
		if step < 1 {
			step = 1
		}

		for start := 0; start < len(words); start += step {
			end := start + targetChunkTokens
			if end > len(words) {
				end = len(words)
			}
			text := strings.Join(words[start:end], " ")
			chunks = append(chunks, rawChunk{
				Page:        page.Page,
				OffsetBegin: offsets[start],
				OffsetEnd:   offsets[end-1] + len(words[end-1]),
				Text:        text,
			})
			if end == len(words) {
				break
			}
		}
	}
	return mergeSmallChunks(chunks)
}

// mergeSmallChunks folds any chunk below minMergeTokens words into the
// preceding chunk on the same page, or the following one if it is first.
func mergeSmallChunks(chunks []rawChunk) []rawChunk {
	if len(chunks) <= 1 {
		return chunks
	}
	out := make([]rawChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(out) > 0 && wordCount(c.Text) < minMergeTokens && out[len(out)-1].Page == c.Page {
			prev := out[len(out)-1]
			prev.Text = prev.Text + " " + c.Text
			prev.OffsetEnd = c.OffsetEnd
			out[len(out)-1] = prev
			continue
		}
		out = append(out, c)
	}
	if len(out) > 1 && wordCount(out[0].Text) < minMergeTokens {
		out[1].Text = out[0].Text + " " + out[1].Text
		out[1].OffsetBegin = out[0].OffsetBegin
		out = out[1:]
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// tokenizeWithOffsets splits text on whitespace and returns the words
// alongside each word's starting byte offset in text.
func tokenizeWithOffsets(text string) ([]string, []int) {
	var words []string
	var offsets []int
	inWord := false
	wordStart := 0
	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			inWord = true
			wordStart = i
		}
		if isSpace && inWord {
			words = append(words, text[wordStart:i])
			offsets = append(offsets, wordStart)
			inWord = false
		}
	}
	if inWord {
		words = append(words, text[wordStart:])
		offsets = append(offsets, wordStart)
	}
	return words, offsets
}
