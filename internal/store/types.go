// Package store provides the index writers that persist note documents:
// a bleve index (default) and a SQLite FTS5 index. Writers are opened
// through a Factory and are safe for concurrent use.
package store

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend names an index writer implementation.
type Backend string

const (
	// BackendBleve stores the index with bleve v2 (scorch segments on disk).
	BackendBleve Backend = "bleve"

	// BackendSQLite stores the index in a SQLite database with an FTS5 table.
	BackendSQLite Backend = "sqlite"
)

// Analyzer names understood by every backend.
const (
	AnalyzerStandard = "standard"
	AnalyzerEnglish  = "english"
	AnalyzerSimple   = "simple"
)

// Term identifies documents by the exact value of one field.
type Term struct {
	Field string
	Value string
}

func (t Term) String() string {
	return t.Field + ":" + t.Value
}

// Document is a unit of indexed content. ID is unique within the index;
// Fields holds the field values by name.
type Document struct {
	ID     string
	Fields map[string]string
}

// Directory describes where an index lives.
type Directory struct {
	Backend Backend
	// Path is the index location on disk. Empty for in-memory indexes.
	Path string
}

func (d Directory) String() string {
	if d.Path == "" {
		return string(d.Backend) + ":memory"
	}
	return string(d.Backend) + ":" + d.Path
}

// AnalysisConfig controls how field text is tokenized.
type AnalysisConfig struct {
	// Analyzer is one of AnalyzerStandard, AnalyzerEnglish or AnalyzerSimple.
	Analyzer string

	// KeywordFields are indexed verbatim so Term lookups on them are exact.
	KeywordFields []string
}

// DefaultAnalysisConfig returns the standard analyzer with id and path as
// keyword fields.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Analyzer:      AnalyzerStandard,
		KeywordFields: []string{"id", "path"},
	}
}

func (a AnalysisConfig) withDefaults() AnalysisConfig {
	if a.Analyzer == "" {
		a.Analyzer = AnalyzerStandard
	}
	if len(a.KeywordFields) == 0 {
		a.KeywordFields = DefaultAnalysisConfig().KeywordFields
	}
	return a
}

func (a AnalysisConfig) isKeyword(field string) bool {
	for _, f := range a.KeywordFields {
		if f == field {
			return true
		}
	}
	return false
}

// Validate checks the analyzer name.
func (a AnalysisConfig) Validate() error {
	switch strings.ToLower(a.Analyzer) {
	case "", AnalyzerStandard, AnalyzerEnglish, AnalyzerSimple:
		return nil
	default:
		return fmt.Errorf("unknown analyzer %q (valid: standard, english, simple)", a.Analyzer)
	}
}

// Writer is a mutable search index. Implementations must tolerate concurrent
// calls from several goroutines; concurrent updates to the same term resolve
// as last writer wins.
type Writer interface {
	// UpdateDocument deletes every document matching term, then adds doc.
	UpdateDocument(ctx context.Context, term Term, doc Document) error

	// DeleteAll removes every document.
	DeleteAll(ctx context.Context) error

	// DeleteDocuments removes every document matching term.
	DeleteDocuments(ctx context.Context, term Term) error

	// Commit makes pending changes durable and advances the commit generation.
	Commit(ctx context.Context) error

	// Optimize compacts the index where the backend supports it.
	Optimize(ctx context.Context) error

	// SetInfoStream directs a trace of writer activity to w. Nil disables it.
	SetInfoStream(w io.Writer)

	// NumDocs returns the number of documents in the index.
	NumDocs(ctx context.Context) (int, error)

	// Directory returns the index location.
	Directory() Directory

	// Close releases the index. The writer is unusable afterwards.
	Close() error
}

func validateUpdate(term Term, doc Document) error {
	if term.Field == "" {
		return fmt.Errorf("term field is empty")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id is empty")
	}
	return nil
}
