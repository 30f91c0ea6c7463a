// Package guard implements the garbage-output detection heuristics applied
// to generated text before it is shown to a user or spoken by TTS. Detection
// is a pure function over strings so it can be unit-tested in isolation from
// any LLM call.
package guard

import "strings"

// Heuristic names the individual check that flagged an output, for metrics
// and logging (one counter increment per heuristic, not per query).
type Heuristic string

const (
	HeuristicRepeatedSubstring Heuristic = "repeated_substring"
	HeuristicSingleCharTokens  Heuristic = "single_char_tokens"
	HeuristicLowUniqueRatio    Heuristic = "low_unique_ratio"
)

// Verdict is the result of running [Detect] over a candidate output.
type Verdict struct {
	// IsGarbage is true if any heuristic fired.
	IsGarbage bool
	// Heuristic names which check fired first. Empty if IsGarbage is false.
	Heuristic Heuristic
}

// Detect runs the three garbage-output heuristics over text and returns the
// first one that fires:
//
//  1. any 3-word substring repeated more than 20 times,
//  2. more than 100 single-character whitespace-separated tokens with fewer
//     than 10 distinct such tokens,
//  3. length >= 5000 with a unique-word ratio < 0.10.
func Detect(text string) Verdict {
	if repeatedTrigramCount(text) > 20 {
		return Verdict{IsGarbage: true, Heuristic: HeuristicRepeatedSubstring}
	}
	if hasDegenerateSingleCharTokens(text) {
		return Verdict{IsGarbage: true, Heuristic: HeuristicSingleCharTokens}
	}
	if len(text) >= 5000 && uniqueWordRatio(text) < 0.10 {
		return Verdict{IsGarbage: true, Heuristic: HeuristicLowUniqueRatio}
	}
	return Verdict{}
}

// repeatedTrigramCount returns the highest occurrence count of any
// contiguous 3-word substring in text.
func repeatedTrigramCount(text string) int {
	words := strings.Fields(text)
	if len(words) < 3 {
		return 0
	}
	counts := make(map[string]int, len(words))
	best := 0
	for i := 0; i+2 < len(words); i++ {
		trigram := words[i] + " " + words[i+1] + " " + words[i+2]
		counts[trigram]++
		if counts[trigram] > best {
			best = counts[trigram]
		}
	}
	return best
}

// hasDegenerateSingleCharTokens reports whether text contains more than 100
// single-character whitespace-separated tokens with fewer than 10 distinct
// values among them — the shape left by decoder loops that emit isolated
// punctuation or stray characters.
func hasDegenerateSingleCharTokens(text string) bool {
	tokens := strings.Fields(text)
	distinct := make(map[string]struct{})
	count := 0
	for _, tok := range tokens {
		if len([]rune(tok)) == 1 {
			count++
			distinct[tok] = struct{}{}
		}
	}
	return count > 100 && len(distinct) < 10
}

// uniqueWordRatio returns the fraction of distinct words (case-insensitive)
// among all words in text. A value near zero indicates pathological
// repetition.
func uniqueWordRatio(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 1.0
	}
	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[strings.ToLower(w)] = struct{}{}
	}
	return float64(len(distinct)) / float64(len(words))
}
