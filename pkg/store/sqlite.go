package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/text"
)

const (
	// driverName is go-sqlite3 with the match functions registered.
	driverName = "sqlite3_tmengine"

	// DefaultBusyTimeout is how long a connection waits on a locked database.
	DefaultBusyTimeout = 5 * time.Second

	// timeLayout is fixed width so stored timestamps sort lexically in time
	// order.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc(clauseFunctions[MatchPhrase], phraseScore, true); err != nil {
				return fmt.Errorf("register %s: %w", clauseFunctions[MatchPhrase], err)
			}
			if err := conn.RegisterFunc(clauseFunctions[MatchAllTerms], allTermsScore, true); err != nil {
				return fmt.Errorf("register %s: %w", clauseFunctions[MatchAllTerms], err)
			}
			if err := conn.RegisterFunc(clauseFunctions[MatchFuzzy], fuzzyScore, true); err != nil {
				return fmt.Errorf("register %s: %w", clauseFunctions[MatchFuzzy], err)
			}
			return nil
		},
	})
}

// Options configures a SQLiteStore.
type Options struct {
	// BusyTimeout bounds waits on a locked database file.
	BusyTimeout time.Duration
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// SQLiteStore implements Store on a single SQLite database. Each collection is
// one table; schemas are recorded in the tm_collections table.
type SQLiteStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	logger *logrus.Logger

	mu      sync.RWMutex
	schemas map[string]Schema
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database restricted to one connection.
func Open(path string, opts Options) (*SQLiteStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_txlock=immediate",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:      db,
		sb:      sq.StatementBuilder,
		logger:  opts.Logger,
		schemas: make(map[string]Schema),
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tm_collections (
		name TEXT PRIMARY KEY,
		schema TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, classify(context.Background(), "create catalog", err)
	}

	opts.Logger.WithFields(logrus.Fields{
		"path":            path,
		"busy_timeout_ms": opts.BusyTimeout.Milliseconds(),
	}).Info("Opened SQLite store")
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database answers queries.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify(ctx, "ping", err)
	}
	return nil
}

// CollectionExists reports whether the named collection has been created.
func (s *SQLiteStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if !identPattern.MatchString(name) {
		return false, fmt.Errorf("%w: bad name %q", ErrInvalidCollection, name)
	}
	_, err := s.schema(ctx, name)
	if errors.Is(err, ErrNoCollection) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateCollection creates the table and indexes for a collection and records
// its schema. Concurrent creation of the same collection is tolerated; an
// existing collection with a different schema is an error.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string, schema Schema) error {
	if err := validateCollection(name, schema); err != nil {
		return err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, "create collection", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	cols := make([]string, 0, len(schema.Fields())+3)
	cols = append(cols, "id TEXT PRIMARY KEY")
	for _, f := range schema.Fields() {
		cols = append(cols, fmt.Sprintf("%q TEXT NOT NULL DEFAULT ''", f))
	}
	cols = append(cols, "created_at TEXT NOT NULL", "updated_at TEXT NOT NULL")

	exactCols := append(slices.Clone(schema.KeywordFields), schema.ExactField)
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", name, strings.Join(cols, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%s)", name+"_exact_idx", name, quoteAll(exactCols)),
	}
	if len(schema.KeywordFields) > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%s)",
			name+"_keyword_idx", name, quoteAll(schema.KeywordFields)))
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(ctx, "create collection", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tm_collections (name, schema, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, string(raw), timestamp(time.Now())); err != nil {
		return classify(ctx, "create collection", err)
	}

	var stored string
	if err := tx.QueryRowContext(ctx, `SELECT schema FROM tm_collections WHERE name = ?`, name).Scan(&stored); err != nil {
		return classify(ctx, "create collection", err)
	}
	if stored != string(raw) {
		return fmt.Errorf("%w: %s already exists with a different schema", ErrInvalidCollection, name)
	}
	if err := tx.Commit(); err != nil {
		return classify(ctx, "create collection", err)
	}

	s.mu.Lock()
	s.schemas[name] = schema
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"collection":  name,
		"exact_field": schema.ExactField,
		"fuzzy_field": schema.FuzzyField,
	}).Info("Collection ready")
	return nil
}

// Exact returns the oldest document whose fields equal every filter.
func (s *SQLiteStore) Exact(ctx context.Context, collection string, q ExactQuery) (*Hit, error) {
	schema, err := s.schema(ctx, collection)
	if err != nil {
		return nil, err
	}
	eq, err := filterEq(schema, q.Filters)
	if err != nil {
		return nil, err
	}
	fields := schema.Fields()
	query, args, err := s.sb.Select("id").Columns(fields...).Column("0.0").
		From(collection).
		Where(eq).
		OrderBy("created_at", "id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build exact lookup: %v", ErrProtocol, err)
	}
	hit, err := scanHit(s.db.QueryRowContext(ctx, query, args...), fields)
	if err != nil {
		return nil, classify(ctx, "exact lookup", err)
	}
	return hit, nil
}

// Fuzzy ranks documents passing the filters by the weighted clause scores and
// returns the best one.
func (s *SQLiteStore) Fuzzy(ctx context.Context, collection string, q FuzzyQuery) (*Hit, error) {
	schema, err := s.schema(ctx, collection)
	if err != nil {
		return nil, err
	}
	if q.Field != schema.FuzzyField {
		return nil, fmt.Errorf("%w: field %q is not fuzzy-searchable in %s", ErrProtocol, q.Field, collection)
	}
	if len(q.Should) == 0 {
		return nil, fmt.Errorf("%w: fuzzy query without clauses", ErrProtocol)
	}
	eq, err := filterEq(schema, q.Filters)
	if err != nil {
		return nil, err
	}

	var (
		matched   []string
		scored    []string
		matchArgs []any
		scoreArgs []any
	)
	phrase := text.Fold(q.Text)
	terms := strings.Join(q.Terms, termSeparator)
	for _, c := range q.Should {
		fn, ok := clauseFunctions[c.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: unknown clause kind %d", ErrProtocol, c.Kind)
		}
		arg := terms
		if c.Kind == MatchPhrase {
			arg = phrase
		}
		call := fn + "(" + q.Field + ", ?)"
		matched = append(matched, "("+call+" > 0)")
		matchArgs = append(matchArgs, arg)
		scored = append(scored, call+" * ?")
		scoreArgs = append(scoreArgs, arg, c.Boost)
	}
	minimum := max(q.MinimumShouldMatch, 1)

	fields := schema.Fields()
	ranked := s.sb.Select("id").Columns(fields...).Column("created_at").
		Column(sq.Alias(sq.Expr(strings.Join(matched, " + "), matchArgs...), "matched")).
		Column(sq.Alias(sq.Expr(strings.Join(scored, " + "), scoreArgs...), "relevance")).
		From(collection).
		Where(eq)
	query, args, err := s.sb.Select("id").Columns(fields...).Column("relevance").
		FromSelect(ranked, "ranked").
		Where(sq.GtOrEq{"matched": minimum}).
		OrderBy("relevance DESC", "created_at", "id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build fuzzy lookup: %v", ErrProtocol, err)
	}

	hit, err := scanHit(s.db.QueryRowContext(ctx, query, args...), fields)
	if err != nil {
		return nil, classify(ctx, "fuzzy lookup", err)
	}
	return hit, nil
}

// Bulk applies ops in one transaction. If any op fails the transaction is
// rolled back and a *BulkError lists every failure. A committed transaction is
// visible to all later queries, which satisfies RefreshWaitFor.
func (s *SQLiteStore) Bulk(ctx context.Context, collection string, ops []Op, refresh Refresh) ([]OpResult, error) {
	schema, err := s.schema(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(ctx, "bulk", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	now := timestamp(time.Now())
	results := make([]OpResult, len(ops))
	var failures []OpFailure
	for i, op := range ops {
		fields, values, err := documentColumns(schema, op.Doc)
		if err != nil {
			failures = append(failures, OpFailure{Index: i, Kind: op.Kind, ID: op.ID, Reason: err.Error()})
			continue
		}
		switch op.Kind {
		case OpInsert:
			id := uuid.NewString()
			row := append([]any{id}, values...)
			query, args, err := s.sb.Insert(collection).
				Columns("id").Columns(fields...).Columns("created_at", "updated_at").
				Values(append(row, now, now)...).
				ToSql()
			if err != nil {
				failures = append(failures, OpFailure{Index: i, Kind: op.Kind, Reason: err.Error()})
				continue
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				if isFatal(ctx, err) {
					return nil, classify(ctx, "bulk insert", err)
				}
				failures = append(failures, OpFailure{Index: i, Kind: op.Kind, Reason: err.Error()})
				continue
			}
			results[i] = OpResult{Kind: OpInsert, ID: id}
		case OpUpdate:
			if op.ID == "" {
				failures = append(failures, OpFailure{Index: i, Kind: op.Kind, Reason: "missing document id"})
				continue
			}
			set := make(map[string]any, len(fields)+1)
			for j, f := range fields {
				set[f] = values[j]
			}
			set["updated_at"] = now
			query, args, err := s.sb.Update(collection).
				SetMap(set).
				Where(sq.Eq{"id": op.ID}).
				ToSql()
			if err != nil {
				failures = append(failures, OpFailure{Index: i, Kind: op.Kind, ID: op.ID, Reason: err.Error()})
				continue
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				if isFatal(ctx, err) {
					return nil, classify(ctx, "bulk update", err)
				}
				failures = append(failures, OpFailure{Index: i, Kind: op.Kind, ID: op.ID, Reason: err.Error()})
				continue
			}
			if n, _ := res.RowsAffected(); n == 0 {
				failures = append(failures, OpFailure{Index: i, Kind: op.Kind, ID: op.ID, Reason: "document missing"})
				continue
			}
			results[i] = OpResult{Kind: OpUpdate, ID: op.ID}
		default:
			failures = append(failures, OpFailure{Index: i, Kind: op.Kind, ID: op.ID, Reason: "unknown operation"})
		}
	}
	if len(failures) > 0 {
		s.logger.WithFields(logrus.Fields{
			"collection": collection,
			"ops":        len(ops),
			"failures":   len(failures),
		}).Error("Bulk write rejected")
		return nil, &BulkError{Failures: failures}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(ctx, "bulk commit", err)
	}

	s.logger.WithFields(logrus.Fields{
		"collection": collection,
		"ops":        len(ops),
		"wait_for":   refresh == RefreshWaitFor,
	}).Debug("Bulk write committed")
	return results, nil
}

// Count returns the number of documents matching every filter.
func (s *SQLiteStore) Count(ctx context.Context, collection string, filters map[string]string) (int, error) {
	schema, err := s.schema(ctx, collection)
	if err != nil {
		return 0, err
	}
	eq, err := filterEq(schema, filters)
	if err != nil {
		return 0, err
	}
	query, args, err := s.sb.Select("COUNT(*)").From(collection).Where(eq).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build count: %v", ErrProtocol, err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(ctx, "count", err)
	}
	return n, nil
}

// schema returns the recorded schema of a collection, caching it after the
// first read. Schemas never change once created.
func (s *SQLiteStore) schema(ctx context.Context, name string) (Schema, error) {
	s.mu.RLock()
	schema, ok := s.schemas[name]
	s.mu.RUnlock()
	if ok {
		return schema, nil
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM tm_collections WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Schema{}, fmt.Errorf("%w: %s", ErrNoCollection, name)
	}
	if err != nil {
		return Schema{}, classify(ctx, "load schema", err)
	}
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return Schema{}, fmt.Errorf("%w: decode schema of %s: %v", ErrProtocol, name, err)
	}

	s.mu.Lock()
	s.schemas[name] = schema
	s.mu.Unlock()
	return schema, nil
}

func validateCollection(name string, schema Schema) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidCollection, name)
	}
	if schema.ExactField == "" || schema.FuzzyField == "" {
		return fmt.Errorf("%w: schema needs an exact and a fuzzy field", ErrInvalidCollection)
	}
	seen := map[string]bool{"id": true, "created_at": true, "updated_at": true}
	for _, f := range schema.Fields() {
		if !identPattern.MatchString(f) {
			return fmt.Errorf("%w: bad field name %q", ErrInvalidCollection, f)
		}
		if seen[f] {
			return fmt.Errorf("%w: duplicate or reserved field %q", ErrInvalidCollection, f)
		}
		seen[f] = true
	}
	return nil
}

// filterEq turns equality filters on schema fields into a condition. An
// empty filter set matches every document.
func filterEq(schema Schema, filters map[string]string) (sq.Eq, error) {
	known := make(map[string]bool)
	for _, f := range schema.Fields() {
		known[f] = true
	}
	eq := make(sq.Eq, len(filters))
	for k, v := range filters {
		if !known[k] {
			return nil, fmt.Errorf("%w: unknown filter field %q", ErrProtocol, k)
		}
		eq[k] = v
	}
	return eq, nil
}

// documentColumns returns the document's fields in sorted order with their
// values. Unknown fields are rejected.
func documentColumns(schema Schema, doc Document) ([]string, []any, error) {
	if len(doc) == 0 {
		return nil, nil, errors.New("empty document")
	}
	known := make(map[string]bool)
	for _, f := range schema.Fields() {
		known[f] = true
	}
	fields := make([]string, 0, len(doc))
	for k := range doc {
		if !known[k] {
			return nil, nil, fmt.Errorf("unknown field %q", k)
		}
		fields = append(fields, k)
	}
	sort.Strings(fields)
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = doc[f]
	}
	return fields, values, nil
}

// scanHit reads "id, fields..., relevance" from row. No row yields nil.
func scanHit(row *sql.Row, fields []string) (*Hit, error) {
	values := make([]string, len(fields))
	dest := make([]any, 0, len(fields)+2)
	var hit Hit
	dest = append(dest, &hit.ID)
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &hit.Relevance)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	hit.Fields = make(Document, len(fields))
	for i, f := range fields {
		hit.Fields[f] = values[i]
	}
	return &hit, nil
}

// isFatal reports errors that abort the whole bulk request rather than a
// single operation.
func isFatal(ctx context.Context, err error) bool {
	wrapped := classify(ctx, "", err)
	return errors.Is(wrapped, ErrTimeout) || errors.Is(wrapped, ErrUnavailable)
}

// timestamp formats t in UTC with timeLayout.
func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func quoteAll(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return strings.Join(quoted, ", ")
}
