package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dasmlab/tmengine/pkg/memory"
	"github.com/dasmlab/tmengine/pkg/text"
)

// Format is the encoding of an import file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// DefaultImportTimeout bounds a background import job.
const DefaultImportTimeout = 30 * time.Minute

// ParseFormat resolves the import format from an explicit name, falling back
// to the file extension of name.
func ParseFormat(format, name string) (Format, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	}
	switch f {
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported import format %q (supported: csv, yaml)", memory.ErrValidation, format)
	}
}

// Record is one translation pair read from an import file. Row is 1-based
// and counts data rows only.
type Record struct {
	Row     int
	Request memory.AddRequest
}

// Adder stores translation pairs. *memory.Engine satisfies it.
type Adder interface {
	AddTranslation(ctx context.Context, req memory.AddRequest) (*memory.AddResponse, error)
}

// JobProcessor runs import jobs against the engine.
type JobProcessor struct {
	engine  Adder
	logger  *logrus.Logger
	workers int
	timeout time.Duration
}

// NewJobProcessor creates a new job processor. workers bounds how many
// language pairs are imported at once.
func NewJobProcessor(engine Adder, workers int, logger *logrus.Logger) *JobProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = 4
	}
	return &JobProcessor{
		engine:  engine,
		logger:  logger,
		workers: workers,
		timeout: DefaultImportTimeout,
	}
}

// ProcessJob runs a queued job to completion. Failures are recorded on the job.
func (p *JobProcessor) ProcessJob(job *ImportJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_ = p.Run(ctx, job, strings.NewReader(job.request.Content))
}

// Run parses content per the job's request and stores every record. Rows that
// fail validation are counted and skipped; a storage outage aborts the job.
func (p *JobProcessor) Run(ctx context.Context, job *ImportJob, content io.Reader) error {
	startTime := time.Now()
	logger := p.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"name":   job.Name,
	})
	logger.Info("Starting import job processing")
	job.UpdateStatus(JobStatusProcessing, "Reading records...")
	importJobsTotal.WithLabelValues(string(JobStatusProcessing)).Inc()

	format, err := ParseFormat(job.request.Format, job.request.Name)
	if err != nil {
		return p.fail(job, logger, err)
	}
	records, err := ReadRecords(format, content, job.request.SourceLanguage, job.request.TargetLanguage)
	if err != nil {
		return p.fail(job, logger, err)
	}
	job.SetTotal(len(records))

	if err := p.store(ctx, job, records); err != nil {
		return p.fail(job, logger, err)
	}
	job.Complete()
	importJobsTotal.WithLabelValues(string(JobStatusCompleted)).Inc()

	snap := job.Snapshot()
	logger.WithFields(logrus.Fields{
		"rows":        snap.Processed,
		"inserted":    snap.Inserted,
		"updated":     snap.Updated,
		"failed":      snap.Failed,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("Import job completed")
	return nil
}

func (p *JobProcessor) fail(job *ImportJob, logger *logrus.Entry, err error) error {
	logger.WithError(err).Error("Import job failed")
	job.SetError(err)
	importJobsTotal.WithLabelValues(string(JobStatusFailed)).Inc()
	return err
}

// store feeds records to the engine. Records of one language pair go to the
// same worker in file order, so repeated sources resolve to the last row.
func (p *JobProcessor) store(ctx context.Context, job *ImportJob, records []Record) error {
	shards := make([][]Record, p.workers)
	assigned := make(map[string]int)
	for _, rec := range records {
		key := text.NormalizeLanguage(rec.Request.SourceLanguage) + "\x00" + text.NormalizeLanguage(rec.Request.TargetLanguage)
		idx, ok := assigned[key]
		if !ok {
			idx = len(assigned) % p.workers
			assigned[key] = idx
		}
		shards[idx] = append(shards[idx], rec)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		fatalErr error
	)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(shard []Record) {
			defer wg.Done()
			for _, rec := range shard {
				if ctx.Err() != nil {
					return
				}
				resp, err := p.engine.AddTranslation(ctx, rec.Request)
				if err != nil {
					kind := memory.KindOf(err)
					if kind == memory.KindStorageUnavailable || kind == memory.KindStorageTimeout {
						once.Do(func() {
							fatalErr = fmt.Errorf("row %d: %w", rec.Row, err)
							cancel()
						})
						return
					}
					importRowsTotal.WithLabelValues("failed").Inc()
					job.RecordRow(0, 0, &RowError{Row: rec.Row, Kind: kind.String(), Error: err.Error()})
					continue
				}
				inserted, updated := 0, 0
				for _, seg := range resp.Segments {
					if seg.Action == memory.ActionInserted {
						inserted++
					} else {
						updated++
					}
				}
				importRowsTotal.WithLabelValues("stored").Inc()
				job.RecordRow(inserted, updated, nil)
			}
		}(shard)
	}
	wg.Wait()

	if fatalErr != nil {
		return fmt.Errorf("import aborted: %w", fatalErr)
	}
	return ctx.Err()
}

// ReadRecords parses an import file. sourceLang and targetLang fill rows that
// do not name their languages.
func ReadRecords(format Format, r io.Reader, sourceLang, targetLang string) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatYAML:
		records, err = readYAML(r)
	default:
		return nil, fmt.Errorf("%w: unsupported import format %q", memory.ErrValidation, format)
	}
	if err != nil {
		return nil, err
	}
	for i := range records {
		req := &records[i].Request
		if req.SourceLanguage == "" {
			req.SourceLanguage = sourceLang
		}
		if req.TargetLanguage == "" {
			req.TargetLanguage = targetLang
		}
	}
	return records, nil
}

// csvColumns maps accepted header spellings to record fields.
var csvColumns = map[string]string{
	"source_language": "source_language",
	"sourcelanguage":  "source_language",
	"target_language": "target_language",
	"targetlanguage":  "target_language",
	"source_text":     "source_text",
	"sourcetext":      "source_text",
	"source":          "source_text",
	"translated_text": "translated_text",
	"translatedtext":  "translated_text",
	"translation":     "translated_text",
	"target":          "translated_text",
}

func readCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", memory.ErrValidation, err)
	}
	index := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		if field, ok := csvColumns[name]; ok {
			index[field] = i
		}
	}
	for _, required := range []string{"source_text", "translated_text"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: csv header lacks a %s column", memory.ErrValidation, required)
		}
	}

	cell := func(row []string, field string) string {
		if i, ok := index[field]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var records []Record
	for n := 1; ; n++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv row %d: %v", memory.ErrValidation, n, err)
		}
		records = append(records, Record{Row: n, Request: memory.AddRequest{
			SourceLanguage: cell(row, "source_language"),
			TargetLanguage: cell(row, "target_language"),
			SourceText:     cell(row, "source_text"),
			TranslatedText: cell(row, "translated_text"),
		}})
	}
	return records, nil
}

type yamlRecord struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	SourceText     string `yaml:"source_text"`
	TranslatedText string `yaml:"translated_text"`
}

// yamlFile is the mapping form: languages once at the top, then the pairs.
type yamlFile struct {
	SourceLanguage string       `yaml:"source_language"`
	TargetLanguage string       `yaml:"target_language"`
	Translations   []yamlRecord `yaml:"translations"`
}

// readYAML accepts either a list of records or a yamlFile mapping.
func readYAML(r io.Reader) ([]Record, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: parse yaml: %v", memory.ErrValidation, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}

	var file yamlFile
	switch root := doc.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&file.Translations); err != nil {
			return nil, fmt.Errorf("%w: decode yaml records: %v", memory.ErrValidation, err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: decode yaml file: %v", memory.ErrValidation, err)
		}
	default:
		return nil, fmt.Errorf("%w: yaml root must be a list or a mapping", memory.ErrValidation)
	}

	records := make([]Record, len(file.Translations))
	for i, y := range file.Translations {
		req := memory.AddRequest{
			SourceLanguage: y.SourceLanguage,
			TargetLanguage: y.TargetLanguage,
			SourceText:     y.SourceText,
			TranslatedText: y.TranslatedText,
		}
		if req.SourceLanguage == "" {
			req.SourceLanguage = file.SourceLanguage
		}
		if req.TargetLanguage == "" {
			req.TargetLanguage = file.TargetLanguage
		}
		records[i] = Record{Row: i + 1, Request: req}
	}
	return records, nil
}
