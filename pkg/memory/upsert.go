package memory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/store"
	"github.com/dasmlab/tmengine/pkg/text"
)

// plannedWrite is the write decided for one distinct source segment.
type plannedWrite struct {
	op      store.Op
	action  Action
	results []int // indexes into the response segments
}

// AddTranslation stores req as aligned segment pairs. Each source segment is
// looked up exactly; existing segments get their translation overwritten and
// new ones are inserted. All writes go to the store as one batch that is
// visible to reads once this returns.
//
// Two concurrent requests for the same new segment can both insert it unless
// SerializeWrites is set.
func (e *Engine) AddTranslation(ctx context.Context, req AddRequest) (resp *AddResponse, err error) {
	const op = "add translation"
	start := time.Now()
	defer func() { recordRequest("add", start, err) }()

	sourceLang := text.NormalizeLanguage(req.SourceLanguage)
	targetLang := text.NormalizeLanguage(req.TargetLanguage)
	source := text.Normalize(req.SourceText)
	translated := text.Normalize(req.TranslatedText)
	if err := requireFields(op, map[string]string{
		"sourceLanguage": sourceLang,
		"targetLanguage": targetLang,
		"sourceText":     source,
		"translatedText": translated,
	}); err != nil {
		return nil, err
	}

	pairs, aligned := text.Align(sourceLang, targetLang, source, translated)
	if !aligned {
		unalignedTotal.Inc()
		e.logger.WithFields(logrus.Fields{
			"source_lang": sourceLang,
			"target_lang": targetLang,
		}).Debug("Segment counts differ, storing whole texts")
	}

	if e.serializeWrites {
		mu := e.pairLock(sourceLang, targetLang)
		mu.Lock()
		defer mu.Unlock()
	}

	collection := CollectionName(targetLang)
	if err := e.ensureCollection(ctx, collection); err != nil {
		return nil, storageError(op, err)
	}

	// Look up every segment in parallel.
	hits := make([]*store.Hit, len(pairs))
	err = forEach(ctx, len(pairs), e.concurrency, func(ctx context.Context, i int) error {
		hit, err := e.exact(ctx, collection, sourceLang, targetLang, pairs[i].Source)
		if err != nil {
			return err
		}
		hits[i] = hit
		return nil
	})
	if err != nil {
		err = storageError(op, err)
		e.logger.WithError(err).WithField("collection", collection).Error("Existing segment lookup failed")
		return nil, err
	}

	writes := planWrites(sourceLang, targetLang, pairs, hits)
	ops := make([]store.Op, len(writes))
	for i, w := range writes {
		ops[i] = w.op
	}

	writeCtx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()
	results, err := e.store.Bulk(writeCtx, collection, ops, store.RefreshWaitFor)
	if err != nil {
		err = storageError(op, err)
		e.logger.WithError(err).WithFields(logrus.Fields{
			"collection": collection,
			"ops":        len(ops),
		}).Error("Batch write failed")
		return nil, err
	}

	resp = &AddResponse{Segments: make([]SegmentOutcome, len(pairs)), Aligned: aligned}
	inserted := 0
	for i, w := range writes {
		for n, idx := range w.results {
			action := w.action
			if n > 0 {
				// Later duplicates in the same request land on the first one's document.
				action = ActionUpdated
			}
			resp.Segments[idx] = SegmentOutcome{
				Segment:    pairs[idx].Source,
				Identifier: results[i].ID,
				Action:     action,
			}
			upsertsTotal.WithLabelValues(string(action)).Inc()
		}
		if w.action == ActionInserted {
			inserted++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"collection":    collection,
		"source_lang":   sourceLang,
		"target_lang":   targetLang,
		"segment_count": len(pairs),
		"inserted":      inserted,
		"aligned":       aligned,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Add translation completed")
	return resp, nil
}

// planWrites emits one write per distinct source key, in order of first
// appearance. An existing segment is updated in place; a new one is inserted.
// Repeated keys in one request keep the last translation.
func planWrites(sourceLang, targetLang string, pairs []text.Pair, hits []*store.Hit) []*plannedWrite {
	var writes []*plannedWrite
	byKey := make(map[string]*plannedWrite, len(pairs))
	for i, p := range pairs {
		key := SourceKey(p.Source)
		if w, ok := byKey[key]; ok {
			w.op.Doc[FieldTranslatedText] = p.Target
			w.results = append(w.results, i)
			continue
		}

		w := &plannedWrite{results: []int{i}}
		if hit := hits[i]; hit != nil {
			w.action = ActionUpdated
			w.op = store.Op{
				Kind: store.OpUpdate,
				ID:   hit.ID,
				Doc:  store.Document{FieldTranslatedText: p.Target},
			}
		} else {
			w.action = ActionInserted
			w.op = store.Op{
				Kind: store.OpInsert,
				Doc:  segmentDocument(sourceLang, targetLang, p.Source, p.Target),
			}
		}
		byKey[key] = w
		writes = append(writes, w)
	}
	return writes
}
