package guard

import (
	"fmt"
	"strings"
	"testing"
)

func TestDetect_RepeatedSubstring(t *testing.T) {
	offending := strings.Repeat("the cat sat ", 25)
	v := Detect(offending)
	if !v.IsGarbage || v.Heuristic != HeuristicRepeatedSubstring {
		t.Fatalf("got %+v, want repeated_substring garbage", v)
	}
}

func TestDetect_SingleCharTokens(t *testing.T) {
	// 300 single-character tokens drawn from {a, b}, separated by distinct
	// words so that no 3-word substring repeats.
	var b strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&b, "a w%d b ", i)
	}
	v := Detect(b.String())
	if !v.IsGarbage || v.Heuristic != HeuristicSingleCharTokens {
		t.Fatalf("got %+v, want single_char_tokens garbage", v)
	}
}

func TestDetect_LowUniqueRatio(t *testing.T) {
	// 1000 words cycling through 90 distinct ones: ratio 0.09, over 5000
	// characters, and no 3-word substring occurs more than 12 times.
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&b, "lorem%d ", i%90)
	}
	offending := b.String()
	v := Detect(offending)
	if !v.IsGarbage || v.Heuristic != HeuristicLowUniqueRatio {
		t.Fatalf("got %+v, want low_unique_ratio garbage", v)
	}
}

func TestDetect_KnownGoodOutput(t *testing.T) {
	good := `A Kalman filter is a recursive estimator that combines noisy
	measurements with a dynamic model to produce an optimal estimate of a
	system's state. It operates in two steps: prediction and update.`
	v := Detect(good)
	if v.IsGarbage {
		t.Fatalf("good output flagged as garbage: %+v", v)
	}
}
