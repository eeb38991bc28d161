package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/store"
	"github.com/dasmlab/tmengine/pkg/text"
)

const (
	// DefaultStorageTimeout bounds every store call.
	DefaultStorageTimeout = 10 * time.Second
	// DefaultConcurrency bounds parallel per-segment work within one request.
	DefaultConcurrency = 8
)

// Fallback is the machine translation used when the memory has no reusable
// match. translate.Translator satisfies it.
type Fallback interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Options configures an Engine.
type Options struct {
	// Store is the retrieval backend. Required.
	Store store.Store
	// Fallback translates segments the memory cannot serve. Without one,
	// misses fail the request with KindFallbackOracle.
	Fallback Fallback
	// Policy decides reuse. Zero value means DefaultPolicy.
	Policy Policy
	// StorageTimeout bounds each store call.
	StorageTimeout time.Duration
	// Concurrency bounds parallel per-segment lookups and fallback calls.
	Concurrency int
	// SerializeWrites runs add requests for the same language pair one at a
	// time, closing the insert race between concurrent requests in this process.
	SerializeWrites bool
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// Engine stores segment pairs and serves translations from them.
type Engine struct {
	store           store.Store
	fallback        Fallback
	policy          Policy
	storageTimeout  time.Duration
	concurrency     int
	serializeWrites bool
	logger          *logrus.Logger

	ensured sync.Map // collection name -> struct{}

	pairMu sync.Mutex
	pairs  map[string]*sync.Mutex
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("memory: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Policy.Threshold == 0 && opts.Policy.Score == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = DefaultStorageTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Engine{
		store:           opts.Store,
		fallback:        opts.Fallback,
		policy:          opts.Policy,
		storageTimeout:  opts.StorageTimeout,
		concurrency:     opts.Concurrency,
		serializeWrites: opts.SerializeWrites,
		logger:          opts.Logger,
		pairs:           make(map[string]*sync.Mutex),
	}, nil
}

// Translate translates req.SourceText segment by segment. Each segment is
// looked up exactly, then fuzzily; a reusable match returns the stored
// translation and anything else goes to the fallback translator. Nothing is
// written to the store.
func (e *Engine) Translate(ctx context.Context, req TranslateRequest) (resp *TranslateResponse, err error) {
	const op = "translate"
	start := time.Now()
	defer func() { recordRequest(op, start, err) }()

	sourceLang := text.NormalizeLanguage(req.SourceLanguage)
	targetLang := text.NormalizeLanguage(req.TargetLanguage)
	source := text.Normalize(req.SourceText)
	if err := requireFields(op, map[string]string{
		"sourceLanguage": sourceLang,
		"targetLanguage": targetLang,
		"sourceText":     source,
	}); err != nil {
		return nil, err
	}

	segments := text.Split(sourceLang, source)
	collection := CollectionName(targetLang)
	results := make([]TranslatedSegment, len(segments))

	err = forEach(ctx, len(segments), e.concurrency, func(ctx context.Context, i int) error {
		seg := segments[i]
		match, err := e.match(ctx, collection, sourceLang, targetLang, seg)
		if err != nil {
			return err
		}
		if match.Kind != Miss {
			results[i] = TranslatedSegment{
				Segment:        seg,
				TranslatedText: match.Translation,
				SourceText:     match.Source,
				Similarity:     match.Score,
				Origin:         OriginStored,
			}
			recordSegment(OriginStored, match)
			return nil
		}

		translated, err := e.translateFallback(ctx, seg, sourceLang, targetLang)
		if err != nil {
			return err
		}
		results[i] = TranslatedSegment{
			Segment:        seg,
			TranslatedText: translated,
			Similarity:     0,
			Origin:         OriginFallback,
		}
		recordSegment(OriginFallback, match)
		return nil
	})
	if err != nil {
		if KindOf(err) == KindUnknown {
			err = storageError(op, err)
		}
		e.logger.WithError(err).WithFields(logrus.Fields{
			"source_lang":   sourceLang,
			"target_lang":   targetLang,
			"segment_count": len(segments),
		}).Error("Translate request failed")
		return nil, err
	}

	translations := make([]string, len(results))
	stored := 0
	for i, r := range results {
		translations[i] = r.TranslatedText
		if r.Origin == OriginStored {
			stored++
		}
	}
	sep := " "
	if text.NonSegmenting(targetLang) {
		sep = ""
	}

	e.logger.WithFields(logrus.Fields{
		"source_lang":   sourceLang,
		"target_lang":   targetLang,
		"segment_count": len(segments),
		"stored":        stored,
		"fallback":      len(segments) - stored,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Translate request completed")

	return &TranslateResponse{
		TranslatedText: strings.Join(translations, sep),
		Segments:       results,
	}, nil
}

// Lookup returns the stored segment matching text exactly (case-insensitive)
// for the language pair, or a Miss.
func (e *Engine) Lookup(ctx context.Context, sourceLanguage, targetLanguage, segment string) (MatchResult, error) {
	const op = "lookup"
	sourceLang := text.NormalizeLanguage(sourceLanguage)
	targetLang := text.NormalizeLanguage(targetLanguage)
	segment = text.Normalize(segment)
	if err := requireFields(op, map[string]string{
		"sourceLanguage": sourceLang,
		"targetLanguage": targetLang,
		"text":           segment,
	}); err != nil {
		return MatchResult{}, err
	}
	hit, err := e.exact(ctx, CollectionName(targetLang), sourceLang, targetLang, segment)
	if err != nil {
		return MatchResult{}, storageError(op, err)
	}
	return e.policy.Match(segment, hit, true), nil
}

// Health checks that the store answers.
func (e *Engine) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()
	if err := e.store.Ping(ctx); err != nil {
		return storageError("health", err)
	}
	return nil
}

// match looks segment up exactly and then fuzzily.
func (e *Engine) match(ctx context.Context, collection, sourceLang, targetLang, segment string) (MatchResult, error) {
	hit, err := e.exact(ctx, collection, sourceLang, targetLang, segment)
	if err != nil {
		return MatchResult{}, storageError("exact lookup", err)
	}
	if hit != nil {
		return e.policy.Match(segment, hit, true), nil
	}

	hit, err = e.fuzzy(ctx, collection, sourceLang, targetLang, segment)
	if err != nil {
		return MatchResult{}, storageError("fuzzy lookup", err)
	}
	res := e.policy.Match(segment, hit, false)

	entry := e.logger.WithFields(logrus.Fields{
		"segment_len": len(segment),
		"match":       res.Kind.String(),
	})
	if hit != nil {
		entry = entry.WithFields(logrus.Fields{
			"similarity": res.Score,
			"relevance":  hit.Relevance,
		})
	}
	entry.Debug("Fuzzy lookup")
	return res, nil
}

// exact runs an exact lookup. A collection that does not exist yet holds no
// segments.
func (e *Engine) exact(ctx context.Context, collection, sourceLang, targetLang, segment string) (*store.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()
	hit, err := e.store.Exact(ctx, collection, exactQuery(sourceLang, targetLang, segment))
	if errors.Is(err, store.ErrNoCollection) {
		return nil, nil
	}
	return hit, err
}

func (e *Engine) fuzzy(ctx context.Context, collection, sourceLang, targetLang, segment string) (*store.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()
	hit, err := e.store.Fuzzy(ctx, collection, fuzzyQuery(sourceLang, targetLang, segment))
	if errors.Is(err, store.ErrNoCollection) {
		return nil, nil
	}
	return hit, err
}

func (e *Engine) translateFallback(ctx context.Context, segment, sourceLang, targetLang string) (string, error) {
	if e.fallback == nil {
		return "", fallbackError("fallback translate", errors.New("no fallback translator configured"))
	}
	translated, err := e.fallback.Translate(ctx, segment, sourceLang, targetLang)
	if err != nil {
		return "", fallbackError("fallback translate", err)
	}
	return translated, nil
}

// ensureCollection creates the target collection on first use.
func (e *Engine) ensureCollection(ctx context.Context, name string) error {
	if _, ok := e.ensured.Load(name); ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	exists, err := e.store.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		if err := e.store.CreateCollection(ctx, name, SegmentSchema); err != nil {
			return err
		}
		e.logger.WithField("collection", name).Info("Created collection")
	}
	e.ensured.Store(name, struct{}{})
	return nil
}

// pairLock returns the mutex serializing writes for a language pair.
func (e *Engine) pairLock(sourceLang, targetLang string) *sync.Mutex {
	key := sourceLang + "\x00" + targetLang
	e.pairMu.Lock()
	defer e.pairMu.Unlock()
	mu, ok := e.pairs[key]
	if !ok {
		mu = &sync.Mutex{}
		e.pairs[key] = mu
	}
	return mu
}

// requireFields fails with a validation error naming every empty field, in
// a stable order.
func requireFields(op string, fields map[string]string) error {
	var missing []string
	for _, name := range []string{"sourceLanguage", "targetLanguage", "sourceText", "translatedText", "text"} {
		if v, ok := fields[name]; ok && v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return validationError(op, fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")))
	}
	return nil
}
