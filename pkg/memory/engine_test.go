package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/store"
)

type fakeFallback struct {
	mu    sync.Mutex
	calls []string
	fn    func(text string) (string, error)
}

func (f *fakeFallback) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(text)
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

func (f *fakeFallback) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(t *testing.T, fb Fallback, tweak func(*Options)) (*Engine, *store.SQLiteStore) {
	t.Helper()
	st, err := store.Open(":memory:", store.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	opts := Options{Store: st, Fallback: fb, Logger: quietLogger()}
	if tweak != nil {
		tweak(&opts)
	}
	eng, err := New(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, st
}

func mustAdd(t *testing.T, eng *Engine, req AddRequest) *AddResponse {
	t.Helper()
	resp, err := eng.AddTranslation(context.Background(), req)
	if err != nil {
		t.Fatalf("add translation: %v", err)
	}
	return resp
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestAddTranslationIsIdempotent(t *testing.T) {
	eng, st := newTestEngine(t, nil, nil)
	req := AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Good morning.", TranslatedText: "Bonjour."}

	first := mustAdd(t, eng, req)
	second := mustAdd(t, eng, req)

	if len(first.Segments) != 1 || len(second.Segments) != 1 {
		t.Fatalf("expected one segment per response, got %d and %d", len(first.Segments), len(second.Segments))
	}
	if first.Segments[0].Action != ActionInserted || second.Segments[0].Action != ActionUpdated {
		t.Fatalf("expected inserted then updated, got %s then %s", first.Segments[0].Action, second.Segments[0].Action)
	}
	if first.Segments[0].Identifier == "" || first.Segments[0].Identifier != second.Segments[0].Identifier {
		t.Fatalf("expected the same identifier, got %q and %q", first.Segments[0].Identifier, second.Segments[0].Identifier)
	}

	n, err := st.Count(context.Background(), CollectionName("fr"), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one stored segment, got %d", n)
	}
}

func TestAddTranslationUpdateIsCaseInsensitive(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	first := mustAdd(t, eng, AddRequest{SourceLanguage: "EN", TargetLanguage: "FR", SourceText: "Thank you.", TranslatedText: "Merci."})
	second := mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "THANK YOU.", TranslatedText: "Merci beaucoup."})

	if second.Segments[0].Action != ActionUpdated || second.Segments[0].Identifier != first.Segments[0].Identifier {
		t.Fatalf("expected case-insensitive update of %q, got %+v", first.Segments[0].Identifier, second.Segments[0])
	}
	res, err := eng.Lookup(context.Background(), "en", "fr", "thank you.")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Kind != ExactHit || res.Translation != "Merci beaucoup." {
		t.Fatalf("expected overwritten translation, got %+v", res)
	}
}

func TestAddTranslationAlignmentFallback(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	resp := mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "A. B.", TranslatedText: "X."})

	if resp.Aligned {
		t.Fatal("expected unaligned response")
	}
	if len(resp.Segments) != 1 || resp.Segments[0].Segment != "A. B." {
		t.Fatalf("expected the whole source as one segment, got %+v", resp.Segments)
	}
	res, err := eng.Lookup(context.Background(), "en", "fr", "A. B.")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Kind != ExactHit || res.Translation != "X." {
		t.Fatalf("expected stored pair A. B. -> X., got %+v", res)
	}
}

func TestAddTranslationNormalizesInput(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	resp := mustAdd(t, eng, AddRequest{
		SourceLanguage: " en ",
		TargetLanguage: "fr CA",
		SourceText:     "  <b>Hello</b> 👋. ",
		TranslatedText: "<i>Salut</i>.",
	})
	if resp.Segments[0].Segment != "Hello ." && resp.Segments[0].Segment != "Hello." {
		t.Fatalf("unexpected normalized segment %q", resp.Segments[0].Segment)
	}
	res, err := eng.Lookup(context.Background(), "en", "fr-ca", resp.Segments[0].Segment)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Kind != ExactHit || res.Translation != "Salut." {
		t.Fatalf("expected stored translation under fr-ca, got %+v", res)
	}
}

func TestAddTranslationCollapsesDuplicateSegments(t *testing.T) {
	eng, st := newTestEngine(t, nil, nil)
	resp := mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hi. Hi.", TranslatedText: "Salut. Coucou."})

	if len(resp.Segments) != 2 {
		t.Fatalf("expected two outcomes, got %d", len(resp.Segments))
	}
	a, b := resp.Segments[0], resp.Segments[1]
	if a.Action != ActionInserted || b.Action != ActionUpdated || a.Identifier != b.Identifier {
		t.Fatalf("expected duplicate to land on the first segment, got %+v %+v", a, b)
	}
	n, _ := st.Count(context.Background(), CollectionName("fr"), nil)
	if n != 1 {
		t.Fatalf("expected one stored segment, got %d", n)
	}
	res, _ := eng.Lookup(context.Background(), "en", "fr", "Hi.")
	if res.Translation != "Coucou." {
		t.Fatalf("expected last translation to win, got %q", res.Translation)
	}
}

func TestAddTranslationSerializedWrites(t *testing.T) {
	eng, st := newTestEngine(t, nil, func(o *Options) { o.SerializeWrites = true })
	req := AddRequest{SourceLanguage: "en", TargetLanguage: "de", SourceText: "Race condition.", TranslatedText: "Wettlaufsituation."}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.AddTranslation(context.Background(), req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add: %v", err)
		}
	}
	count, err := st.Count(context.Background(), CollectionName("de"), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one stored segment with serialized writes, got %d", count)
	}
}

func TestValidation(t *testing.T) {
	eng, st := newTestEngine(t, &fakeFallback{}, nil)
	ctx := context.Background()

	_, err := eng.AddTranslation(ctx, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "<br/>", TranslatedText: "x"})
	if !errors.Is(err, ErrValidation) || KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "sourceText") {
		t.Fatalf("expected the missing field to be named, got %q", err)
	}

	_, err = eng.Translate(ctx, TranslateRequest{SourceLanguage: "", TargetLanguage: " ", SourceText: "Hello."})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	if ok, _ := st.CollectionExists(ctx, CollectionName("fr")); ok {
		t.Fatal("validation failure must not touch the store")
	}
}

func TestTranslateEndToEnd(t *testing.T) {
	fb := &fakeFallback{}
	eng, _ := newTestEngine(t, fb, nil)
	ctx := context.Background()

	added := mustAdd(t, eng, AddRequest{
		SourceLanguage: "en",
		TargetLanguage: "fr",
		SourceText:     "Hello. How are you?",
		TranslatedText: "Bonjour. Comment ça va?",
	})
	if len(added.Segments) != 2 || added.Segments[0].Action != ActionInserted || added.Segments[1].Action != ActionInserted {
		t.Fatalf("expected two inserted segments, got %+v", added.Segments)
	}

	resp, err := eng.Translate(ctx, TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello."})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(resp.Segments) != 1 {
		t.Fatalf("expected one segment, got %d", len(resp.Segments))
	}
	seg := resp.Segments[0]
	if seg.Origin != OriginStored || seg.Similarity != 100 || seg.TranslatedText != "Bonjour." {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if resp.TranslatedText != "Bonjour." {
		t.Fatalf("unexpected joined text %q", resp.TranslatedText)
	}
	if fb.callCount() != 0 {
		t.Fatalf("fallback must not be called for stored segments")
	}
}

func TestTranslateDoesNotPersistFallback(t *testing.T) {
	fb := &fakeFallback{}
	eng, _ := newTestEngine(t, fb, nil)
	ctx := context.Background()
	mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello.", TranslatedText: "Bonjour."})

	resp, err := eng.Translate(ctx, TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Quantum chromodynamics."})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	seg := resp.Segments[0]
	if seg.Origin != OriginFallback || seg.Similarity != 0 || seg.TranslatedText != "[fr] Quantum chromodynamics." {
		t.Fatalf("expected fallback translation, got %+v", seg)
	}
	if fb.callCount() != 1 {
		t.Fatalf("expected one fallback call, got %d", fb.callCount())
	}

	res, err := eng.Lookup(ctx, "en", "fr", "Quantum chromodynamics.")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Kind != Miss {
		t.Fatalf("fallback output must not be stored, got %+v", res)
	}
}

func TestTranslateWithoutCollectionFallsBack(t *testing.T) {
	fb := &fakeFallback{}
	eng, st := newTestEngine(t, fb, nil)
	resp, err := eng.Translate(context.Background(), TranslateRequest{SourceLanguage: "en", TargetLanguage: "it", SourceText: "Hello."})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if resp.Segments[0].Origin != OriginFallback {
		t.Fatalf("expected fallback, got %+v", resp.Segments[0])
	}
	if ok, _ := st.CollectionExists(context.Background(), CollectionName("it")); ok {
		t.Fatal("translate must not create collections")
	}
}

func TestTranslateThresholdBoundary(t *testing.T) {
	for _, tc := range []struct {
		score  float64
		origin Origin
	}{
		{50, OriginStored},
		{49, OriginFallback},
	} {
		t.Run(fmt.Sprintf("score_%v", tc.score), func(t *testing.T) {
			fb := &fakeFallback{}
			score := tc.score
			eng, _ := newTestEngine(t, fb, func(o *Options) {
				o.Policy = Policy{Threshold: ReuseThreshold, Score: func(a, b string) float64 { return score }}
			})
			mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello there.", TranslatedText: "Salut."})

			resp, err := eng.Translate(context.Background(), TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello friend."})
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			seg := resp.Segments[0]
			if seg.Origin != tc.origin {
				t.Fatalf("score %v: expected origin %s, got %+v", tc.score, tc.origin, seg)
			}
			switch tc.origin {
			case OriginStored:
				if seg.Similarity != 50 || seg.TranslatedText != "Salut." || seg.SourceText != "Hello there." {
					t.Fatalf("unexpected reused segment %+v", seg)
				}
			case OriginFallback:
				if seg.Similarity != 0 || fb.callCount() != 1 {
					t.Fatalf("unexpected fallback segment %+v (calls %d)", seg, fb.callCount())
				}
			}
		})
	}
}

func TestTranslateFuzzyReuse(t *testing.T) {
	fb := &fakeFallback{}
	eng, _ := newTestEngine(t, fb, nil)
	mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "The weather is nice today.", TranslatedText: "Il fait beau aujourd'hui."})

	resp, err := eng.Translate(context.Background(), TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "The weather is nice today!"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	seg := resp.Segments[0]
	if seg.Origin != OriginStored || seg.Similarity < ReuseThreshold || seg.Similarity >= 100 {
		t.Fatalf("expected a fuzzy reuse below 100, got %+v", seg)
	}
}

func TestTranslatePreservesOrder(t *testing.T) {
	fb := &fakeFallback{fn: func(s string) (string, error) { return strings.ToUpper(s), nil }}
	eng, _ := newTestEngine(t, fb, func(o *Options) { o.Concurrency = 2 })
	mustAdd(t, eng, AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Two.", TranslatedText: "Deux."})

	resp, err := eng.Translate(context.Background(), TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "One. Two. Three. Four."})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if resp.TranslatedText != "ONE. Deux. THREE. FOUR." {
		t.Fatalf("unexpected joined text %q", resp.TranslatedText)
	}
	want := []Origin{OriginFallback, OriginStored, OriginFallback, OriginFallback}
	for i, seg := range resp.Segments {
		if seg.Origin != want[i] {
			t.Errorf("segment %d: origin %s, want %s", i, seg.Origin, want[i])
		}
	}
}

func TestTranslateFallbackFailure(t *testing.T) {
	fb := &fakeFallback{fn: func(string) (string, error) { return "", errors.New("backend down") }}
	eng, _ := newTestEngine(t, fb, nil)
	_, err := eng.Translate(context.Background(), TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello."})
	if KindOf(err) != KindFallbackOracle || !errors.Is(err, ErrFallbackOracle) {
		t.Fatalf("expected fallback oracle error, got %v", err)
	}

	noFallback, _ := newTestEngine(t, nil, nil)
	_, err = noFallback.Translate(context.Background(), TranslateRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello."})
	if KindOf(err) != KindFallbackOracle {
		t.Fatalf("expected fallback oracle error without translator, got %v", err)
	}
}

func TestStorageUnavailable(t *testing.T) {
	eng, st := newTestEngine(t, &fakeFallback{}, nil)
	st.Close()

	_, err := eng.AddTranslation(context.Background(), AddRequest{SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello.", TranslatedText: "Bonjour."})
	if KindOf(err) != KindStorageUnavailable {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if err := eng.Health(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected unhealthy store, got %v", err)
	}
}

func TestStorageErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("exact: %w", store.ErrTimeout), KindStorageTimeout},
		{context.DeadlineExceeded, KindStorageTimeout},
		{fmt.Errorf("ping: %w", store.ErrUnavailable), KindStorageUnavailable},
		{&store.BulkError{Failures: []store.OpFailure{{Index: 0, Reason: "document missing"}}}, KindStorageProtocol},
		{store.ErrInvalidCollection, KindStorageProtocol},
	}
	for _, tc := range cases {
		if got := KindOf(storageError("op", tc.err)); got != tc.want {
			t.Errorf("storageError(%v) kind = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestCollectionName(t *testing.T) {
	cases := map[string]string{
		"fr":      "translations_fr",
		"FR-ca":   "translations_fr_ca",
		"zh Hant": "translations_zh_hant",
	}
	for in, want := range cases {
		if got := CollectionName(in); got != want {
			t.Errorf("CollectionName(%q) = %q, want %q", in, got, want)
		}
	}
}
