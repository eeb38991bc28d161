package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/memory"
	"github.com/dasmlab/tmengine/pkg/service"
)

// Engine is the part of the translation memory the HTTP API needs.
type Engine interface {
	service.Engine
	Lookup(ctx context.Context, sourceLanguage, targetLanguage, segment string) (memory.MatchResult, error)
	Health(ctx context.Context) error
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 8 << 20

// HTTPServer provides the JSON API, import job status, SSE progress updates,
// health and metrics.
type HTTPServer struct {
	engine   Engine
	jobQueue *service.JobQueue
	logger   *logrus.Logger
	port     int

	pollInterval time.Duration
	srv          *http.Server
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(engine Engine, jobQueue *service.JobQueue, logger *logrus.Logger, port int) *HTTPServer {
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPServer{
		engine:       engine,
		jobQueue:     jobQueue,
		logger:       logger,
		port:         port,
		pollInterval: time.Second,
	}
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/translations", s.handleAddTranslation)
	mux.HandleFunc("POST /api/v1/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/v1/lookup", s.handleLookup)

	mux.HandleFunc("POST /api/v1/imports", s.handleImport)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", s.handleJobEvents)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start listens on the configured port and blocks until the server stops.
// It returns nil after Shutdown.
func (s *HTTPServer) Start() error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithFields(logrus.Fields{
		"port": s.port,
	}).Info("Starting HTTP server")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) handleAddTranslation(w http.ResponseWriter, r *http.Request) {
	var req memory.AddRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.engine.AddTranslation(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req memory.TranslateRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.engine.Translate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLookup returns the stored exact match for one segment.
func (s *HTTPServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.engine.Lookup(r.Context(), q.Get("sourceLanguage"), q.Get("targetLanguage"), q.Get("text"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"match":          res.Kind.String(),
		"identifier":     res.Identifier,
		"sourceText":     res.Source,
		"translatedText": res.Translation,
		"similarity":     res.Score,
	})
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	var req service.ImportRequest
	if !s.decode(w, r, &req) {
		return
	}
	jobID, err := s.jobQueue.CreateJob(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"jobId":      jobID,
		"acceptedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleJobStatus returns the current state of an import job.
func (s *HTTPServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobQueue.GetJob(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleJobEvents streams job progress as Server-Sent Events until the job
// finishes or the client goes away.
func (s *HTTPServer) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobQueue.GetJob(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	snap := job.Snapshot()
	s.sendSSEEvent(w, "status", snap)
	if snap.Done() {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	lastStatus := snap.Status
	lastProcessed := snap.Processed
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap := job.Snapshot()
			if snap.Status == lastStatus && snap.Processed == lastProcessed {
				continue
			}
			s.sendSSEEvent(w, "status", snap)
			lastStatus, lastProcessed = snap.Status, snap.Processed
			if snap.Done() {
				return
			}
		}
	}
}

// sendSSEEvent writes one event in "event: <type>\ndata: <json>\n\n" form.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, snap service.JobSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal SSE event")
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", data)

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// handleHealth reports whether the store answers.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.engine.Health(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode request body: %v", memory.ErrValidation, err))
		return false
	}
	return true
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, service.ErrJobNotFound) {
		return http.StatusNotFound
	}
	switch memory.KindOf(err) {
	case memory.KindValidation:
		return http.StatusBadRequest
	case memory.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case memory.KindStorageTimeout:
		return http.StatusGatewayTimeout
	case memory.KindStorageProtocol, memory.KindFallbackOracle:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	kind := memory.KindOf(err).String()
	if errors.Is(err, service.ErrJobNotFound) {
		kind = "not_found"
	}
	entry := s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": code,
		"kind":   kind,
	}).WithError(err)
	if code >= http.StatusInternalServerError {
		entry.Error("HTTP request failed")
	} else {
		entry.Debug("HTTP request rejected")
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
