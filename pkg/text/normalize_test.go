package text

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"   ":                       "",
		"  Hello world  ":           "Hello world",
		"<p>Hello <b>world</b></p>": "Hello world",
		"Thanks 👍":                  "Thanks",
		"Family 👨‍👩‍👧 trip":         "Family  trip",
		"<<b>i>nested":              "nested",
		"keycap 1️⃣":                "keycap 1",
		"Sunny ☀️ day":              "Sunny  day",
		"\t<br/>Line\n":             "Line",
		"نمی‌خواهم":                 "نمی‌خواهم",
		"a 2 < 3 and 4 > 1":         "a 2  1",
		"Grüße aus Köln":            "Grüße aus Köln",
		"❤️ <span>love</span> 🇫🇷 ":  "love",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"  <div> Hello 😀 </div> ",
		"<<b>i>>x",
		"a\u200d😀b",
		"a😀\u200db",
		"  ✨ sparkle ✨  ",
		"<<<<a>>>>",
		"plain text.",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"EN":         "en",
		"  fr  ":     "fr",
		"en US":      "en-us",
		"zh \t Hant": "zh-hant",
		"pt-BR":      "pt-br",
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFold(t *testing.T) {
	if Fold("Hello.") != Fold("HELLO.") {
		t.Fatalf("expected case-insensitive keys to match")
	}
	if Fold("Straße") != Fold("STRASSE") {
		t.Fatalf("expected full case folding, got %q and %q", Fold("Straße"), Fold("STRASSE"))
	}
	// Decomposed and composed forms fold to the same key.
	if Fold("é") != Fold("é") {
		t.Fatalf("expected NFC composition before folding")
	}
}
