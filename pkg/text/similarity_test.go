package text

import (
	"math"
	"testing"
)

func TestSimilarityIdentical(t *testing.T) {
	for _, s := range []string{"Hello.", "How are you?", "ab", "今日は晴れ"} {
		if got := Similarity(s, s); got != 100 {
			t.Errorf("Similarity(%q, %q) = %v, want 100", s, s, got)
		}
	}
	if got := Similarity("Hello.", "HELLO."); got != 100 {
		t.Errorf("expected case-insensitive identity, got %v", got)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Hello world", "Hello there world"},
		{"night", "nacht"},
		{"The cat sat.", "A cat sat down."},
		{"aaaa", "aa"},
		{"", "abc"},
	}
	for _, p := range pairs {
		if a, b := Similarity(p[0], p[1]), Similarity(p[1], p[0]); a != b {
			t.Errorf("Similarity not symmetric for %q/%q: %v vs %v", p[0], p[1], a, b)
		}
	}
}

func TestSimilarityShortInputs(t *testing.T) {
	cases := [][2]string{{"", ""}, {"a", "ab"}, {"", "hello"}, {"x", "y"}}
	for _, c := range cases {
		if got := Similarity(c[0], c[1]); got != 0 {
			t.Errorf("Similarity(%q, %q) = %v, want 0", c[0], c[1], got)
		}
	}
}

func TestSimilarityKnownValues(t *testing.T) {
	// night: ni ig gh ht; nacht: na ac ch ht -> one shared bigram of eight.
	if got := Similarity("night", "nacht"); math.Abs(got-25) > 1e-9 {
		t.Fatalf("Similarity(night, nacht) = %v, want 25", got)
	}
	// Whitespace is ignored.
	if got := Similarity("a b c", "abc"); got != 100 {
		t.Fatalf("expected whitespace-insensitive identity, got %v", got)
	}
	// Repeated bigrams are counted as a multiset: aa aa aa vs aa.
	if got := Similarity("aaaa", "aa"); math.Abs(got-50) > 1e-9 {
		t.Fatalf("Similarity(aaaa, aa) = %v, want 50", got)
	}
	got := Similarity("How are you?", "How are you today?")
	if got <= 50 || got >= 100 {
		t.Fatalf("expected a close but imperfect match, got %v", got)
	}
}

func TestSimilarityRange(t *testing.T) {
	inputs := []string{"", "a", "abc", "Hello world.", "completely different", "今日は"}
	for _, a := range inputs {
		for _, b := range inputs {
			s := Similarity(a, b)
			if s < 0 || s > 100 {
				t.Fatalf("Similarity(%q, %q) = %v out of range", a, b, s)
			}
		}
	}
}
