// Package store defines the retrieval oracle used by the translation memory
// and provides a SQLite-backed implementation of it.
//
// A store holds named collections of flat string documents. Each collection is
// created once with a Schema naming one exact-match field, one fuzzy-searchable
// field, the keyword fields used as filters, and any stored-only fields.
// Documents are addressed by an identifier the store assigns on insert.
package store

import "context"

// Schema describes the fields of a collection. It is fixed at creation time.
type Schema struct {
	// ExactField is matched by equality. Callers store a case-folded key here.
	ExactField string `json:"exact_field"`
	// FuzzyField is searched by the phrase, all-terms and fuzzy clauses.
	FuzzyField string `json:"fuzzy_field"`
	// KeywordFields are equality filters (for example language tags).
	KeywordFields []string `json:"keyword_fields"`
	// StoredFields are returned with hits but never searched.
	StoredFields []string `json:"stored_fields"`
}

// Fields returns every field of the schema in declaration order.
func (s Schema) Fields() []string {
	fields := make([]string, 0, 2+len(s.KeywordFields)+len(s.StoredFields))
	fields = append(fields, s.KeywordFields...)
	fields = append(fields, s.ExactField, s.FuzzyField)
	fields = append(fields, s.StoredFields...)
	return fields
}

// Document is a flat set of field values.
type Document map[string]string

// Hit is a document returned by a query.
type Hit struct {
	ID     string
	Fields Document
	// Relevance is the store's own ranking score. It is only comparable
	// between hits of the same query.
	Relevance float64
}

// ExactQuery matches documents whose fields equal every filter value.
type ExactQuery struct {
	Filters map[string]string
}

// MatchKind selects a fuzzy query strategy.
type MatchKind int

const (
	// MatchPhrase matches when the whole query text occurs in the field.
	MatchPhrase MatchKind = iota
	// MatchAllTerms matches when every query term occurs in the field.
	MatchAllTerms
	// MatchFuzzy matches when query terms occur within a small edit distance.
	MatchFuzzy
)

func (k MatchKind) String() string {
	switch k {
	case MatchPhrase:
		return "phrase"
	case MatchAllTerms:
		return "all_terms"
	case MatchFuzzy:
		return "fuzzy"
	}
	return "unknown"
}

// Clause is one weighted strategy of a fuzzy query.
type Clause struct {
	Kind  MatchKind
	Boost float64
}

// FuzzyQuery filters by keyword fields and ranks the remaining documents by
// the weighted sum of the Should clauses. Documents matching fewer than
// MinimumShouldMatch clauses are excluded.
type FuzzyQuery struct {
	Filters            map[string]string
	Field              string
	Text               string
	Terms              []string
	Should             []Clause
	MinimumShouldMatch int
}

// OpKind is the kind of a bulk operation.
type OpKind int

const (
	// OpInsert creates a document with a new identifier.
	OpInsert OpKind = iota
	// OpUpdate overwrites the given fields of an existing document.
	OpUpdate
)

func (k OpKind) String() string {
	if k == OpUpdate {
		return "update"
	}
	return "insert"
}

// Op is one directive of a bulk write.
type Op struct {
	Kind OpKind
	// ID addresses the document for OpUpdate; ignored for OpInsert.
	ID  string
	Doc Document
}

// OpResult reports the outcome of one Op, in request order.
type OpResult struct {
	Kind OpKind
	ID   string
}

// Refresh controls read-your-writes behaviour of Bulk.
type Refresh int

const (
	// RefreshNone returns as soon as the write is accepted.
	RefreshNone Refresh = iota
	// RefreshWaitFor returns only once the written documents are visible to
	// subsequent queries.
	RefreshWaitFor
)

// Store is the retrieval oracle contract.
type Store interface {
	// CollectionExists reports whether the named collection has been created.
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection creates the collection. Creating a collection that
	// already exists with the same schema is not an error.
	CreateCollection(ctx context.Context, name string, schema Schema) error
	// Exact returns the first document matching every filter, or nil.
	Exact(ctx context.Context, collection string, q ExactQuery) (*Hit, error)
	// Fuzzy returns the most relevant document for the query, or nil.
	Fuzzy(ctx context.Context, collection string, q FuzzyQuery) (*Hit, error)
	// Bulk applies all operations atomically and returns one result per op.
	Bulk(ctx context.Context, collection string, ops []Op, refresh Refresh) ([]OpResult, error)
	// Count returns the number of documents matching every filter.
	Count(ctx context.Context, collection string, filters map[string]string) (int, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
