package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/memory"
	"github.com/dasmlab/tmengine/pkg/service"
	"github.com/dasmlab/tmengine/pkg/store"
)

type echoFallback struct{}

func (echoFallback) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	return "[" + targetLang + "] " + text, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Engine, *store.SQLiteStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st, err := store.Open(":memory:", store.Options{Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	eng, err := memory.New(memory.Options{Store: st, Fallback: echoFallback{}, Logger: logger})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	jobs := service.NewJobQueue(logger)
	jobs.SetProcessor(service.NewJobProcessor(eng, 2, logger))

	s := NewHTTPServer(eng, jobs, logger, 0)
	s.pollInterval = 10 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, eng, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAddThenTranslate(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/translations", memory.AddRequest{
		SourceLanguage: "en", TargetLanguage: "fr",
		SourceText: "Hello.", TranslatedText: "Bonjour.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status %d", resp.StatusCode)
	}
	var added memory.AddResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(added.Segments) != 1 || added.Segments[0].Action != memory.ActionInserted {
		t.Fatalf("unexpected add response %+v", added)
	}

	resp = postJSON(t, ts.URL+"/api/v1/translate", memory.TranslateRequest{
		SourceLanguage: "en", TargetLanguage: "fr", SourceText: "Hello. Thanks.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("translate status %d", resp.StatusCode)
	}
	var out memory.TranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TranslatedText != "Bonjour. [fr] Thanks." {
		t.Fatalf("unexpected translation %q", out.TranslatedText)
	}

	lookup, err := http.Get(ts.URL + "/api/v1/lookup?sourceLanguage=en&targetLanguage=fr&text=hello.")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	defer lookup.Body.Close()
	var match map[string]any
	if err := json.NewDecoder(lookup.Body).Decode(&match); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if match["match"] != "exact" || match["translatedText"] != "Bonjour." {
		t.Fatalf("unexpected lookup %v", match)
	}
}

func TestValidationErrorBody(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/translate", memory.TranslateRequest{SourceLanguage: "en"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != "validation" || !strings.Contains(body.Error, "targetLanguage") {
		t.Fatalf("unexpected error body %+v", body)
	}

	bad, err := http.Post(ts.URL+"/api/v1/translations", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", bad.StatusCode)
	}
}

func TestImportJobAndEvents(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/imports", service.ImportRequest{
		Name:           "pairs.yaml",
		SourceLanguage: "en",
		TargetLanguage: "fr",
		Content:        "- {source_text: Yes., translated_text: Oui.}\n- {source_text: No., translated_text: Non.}\n",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	jobID := accepted["jobId"]
	if jobID == "" {
		t.Fatalf("missing job id in %v", accepted)
	}

	events, err := http.Get(ts.URL + "/api/v1/jobs/" + jobID + "/events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer events.Body.Close()
	if ct := events.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	// The stream ends once the job is finished; the last event carries the
	// final state.
	var last service.JobSnapshot
	scanner := bufio.NewScanner(events.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			if err := json.Unmarshal([]byte(data), &last); err != nil {
				t.Fatalf("decode event: %v", err)
			}
		}
	}
	if last.Status != service.JobStatusCompleted || last.Inserted != 2 {
		t.Fatalf("unexpected final event %+v", last)
	}

	status, err := http.Get(ts.URL + "/api/v1/jobs/" + jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer status.Body.Close()
	var snap service.JobSnapshot
	if err := json.NewDecoder(status.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ID != jobID || !snap.Done() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestUnknownJob(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/jobs/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts, _, st := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	st.Close()
	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after store close, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	postJSON(t, ts.URL+"/api/v1/translate", memory.TranslateRequest{SourceLanguage: "en", TargetLanguage: "de", SourceText: "Hi."})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tmengine_requests_total") {
		t.Fatalf("engine metrics not exported")
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[memory.Kind]int{
		memory.KindValidation:         http.StatusBadRequest,
		memory.KindStorageUnavailable: http.StatusServiceUnavailable,
		memory.KindStorageTimeout:     http.StatusGatewayTimeout,
		memory.KindStorageProtocol:    http.StatusBadGateway,
		memory.KindFallbackOracle:     http.StatusBadGateway,
	}
	for kind, want := range cases {
		if got := StatusFor(&memory.Error{Kind: kind, Op: "test"}); got != want {
			t.Errorf("%s: got %d, want %d", kind, got, want)
		}
	}
	if got := StatusFor(fmt.Errorf("job: %w", service.ErrJobNotFound)); got != http.StatusNotFound {
		t.Errorf("job not found: got %d", got)
	}
	if got := StatusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("unknown: got %d", got)
	}
}
