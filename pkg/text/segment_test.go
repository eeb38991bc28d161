package text

import (
	"reflect"
	"slices"
	"testing"
)

func TestSplitSegmentingLanguage(t *testing.T) {
	got := Split("en", "Hello. How are you?")
	want := []string{"Hello.", "How are you?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
}

func TestSplitNonSegmentingLanguage(t *testing.T) {
	in := Normalize("  Hello. How are you?  ")
	got := Split("th", in)
	if len(got) != 1 || got[0] != in {
		t.Fatalf("expected a single segment %q, got %q", in, got)
	}
	if got := Split("zh-hant", "你好。你好吗？"); len(got) != 1 {
		t.Fatalf("expected zh-hant to bypass segmentation, got %q", got)
	}
}

func TestSegmentsEdgeCases(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"One sentence without a stop", []string{"One sentence without a stop"}},
		{"Pi is 3.14 today. Visit example.com now!", []string{"Pi is 3.14 today.", "Visit example.com now!"}},
		{"Wait... what?! Yes.", []string{"Wait...", "what?!", "Yes."}},
		{`He said "stop." Then left.`, []string{`He said "stop."`, "Then left."}},
		{"Line one\nLine two", []string{"Line one", "Line two"}},
		{"First.\r\n\r\nSecond.", []string{"First.", "Second."}},
		{"今日は晴れ。明日は雨！", []string{"今日は晴れ。", "明日は雨！"}},
		{"「はい。」そうです。", []string{"「はい。」", "そうです。"}},
	}
	for _, tc := range cases {
		got := slices.Collect(Segments(tc.in))
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Segments(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSegmentsRestartable(t *testing.T) {
	seq := Segments("A. B. C.")
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !reflect.DeepEqual(first, second) || len(first) != 3 {
		t.Fatalf("expected the same three segments twice, got %q and %q", first, second)
	}

	// Stopping early must not panic or yield further values.
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected early break after one segment, got %d", n)
	}
}

func TestAlign(t *testing.T) {
	pairs, aligned := Align("en", "fr", "Hello. How are you?", "Bonjour. Comment ça va?")
	if !aligned {
		t.Fatalf("expected aligned segmentation")
	}
	want := []Pair{{"Hello.", "Bonjour."}, {"How are you?", "Comment ça va?"}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("Align = %+v, want %+v", pairs, want)
	}
}

func TestAlignMismatchFallsBackToWholeText(t *testing.T) {
	pairs, aligned := Align("en", "fr", "A. B.", "X.")
	if aligned {
		t.Fatalf("expected mismatched counts to report unaligned")
	}
	if len(pairs) != 1 || pairs[0].Source != "A. B." || pairs[0].Target != "X." {
		t.Fatalf("expected whole-text pair, got %+v", pairs)
	}
}

func TestAlignNonSegmentingTarget(t *testing.T) {
	pairs, aligned := Align("en", "ja", "Hello. Goodbye.", "こんにちは。さようなら。")
	if aligned {
		t.Fatalf("expected 2 vs 1 segments to fall back")
	}
	if len(pairs) != 1 || pairs[0].Target != "こんにちは。さようなら。" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

func TestNonSegmenting(t *testing.T) {
	for _, lang := range []string{"ja", "zh", "zh-cn", "th", "km", "my", "lo"} {
		if !NonSegmenting(lang) {
			t.Errorf("expected %q to be non-segmenting", lang)
		}
	}
	for _, lang := range []string{"en", "fr-ca", "de", "ko", ""} {
		if NonSegmenting(lang) {
			t.Errorf("expected %q to segment", lang)
		}
	}
}
