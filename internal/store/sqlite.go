package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// sqliteFileName is the database file inside an SQLite index location.
const sqliteFileName = "notes.db"

// SQLiteWriter is a Writer backed by SQLite with an FTS5 table.
// Field values are kept verbatim in doc_fields for exact Term matching and
// analyzed into fts_content for full-text queries.
type SQLiteWriter struct {
	// mu serializes write transactions.
	mu       sync.Mutex
	db       *sql.DB
	path     string
	analysis AnalysisConfig
	info     infoStream
}

var _ Writer = (*SQLiteWriter)(nil)

// fts5Tokenizers maps analyzer names to FTS5 tokenizer specs.
var fts5Tokenizers = map[string]string{
	AnalyzerStandard: "unicode61",
	AnalyzerEnglish:  "porter unicode61",
	AnalyzerSimple:   "ascii",
}

// NewSQLiteWriter opens the index database at path, creating it if needed.
// An empty path creates an in-memory database.
func NewSQLiteWriter(path string, analysis AnalysisConfig) (*SQLiteWriter, error) {
	analysis = analysis.withDefaults()
	if err := analysis.Validate(); err != nil {
		return nil, err
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: an in-memory database exists per connection, and a
	// single writer avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	w := &SQLiteWriter{
		db:       db,
		path:     path,
		analysis: analysis,
	}
	if err := w.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return w, nil
}

func (s *SQLiteWriter) initSchema() error {
	tokenizer := fts5Tokenizers[strings.ToLower(s.analysis.Analyzer)]
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS documents (
		doc_id TEXT PRIMARY KEY
	);

	-- Verbatim field values; (field, value) is the Term lookup path
	CREATE TABLE IF NOT EXISTS doc_fields (
		doc_id TEXT NOT NULL,
		field  TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (doc_id, field)
	);
	CREATE INDEX IF NOT EXISTS idx_doc_fields_term ON doc_fields(field, value);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		field UNINDEXED,
		value,
		tokenize='%s'
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`, tokenizer)

	_, err := s.db.Exec(schema)
	return err
}

// UpdateDocument deletes documents matching term and doc.ID, then inserts doc,
// all in one transaction.
func (s *SQLiteWriter) UpdateDocument(ctx context.Context, term Term, doc Document) error {
	if err := validateUpdate(term, doc); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := deleteByTerm(ctx, tx, term); err != nil {
			return err
		}
		if err := deleteByID(ctx, tx, doc.ID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (doc_id) VALUES (?)`, doc.ID); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
		for field, value := range doc.Fields {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO doc_fields (doc_id, field, value) VALUES (?, ?, ?)`,
				doc.ID, field, value); err != nil {
				return fmt.Errorf("failed to insert field %s: %w", field, err)
			}
			if s.analysis.isKeyword(field) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fts_content (doc_id, field, value) VALUES (?, ?, ?)`,
				doc.ID, field, value); err != nil {
				return fmt.Errorf("failed to index field %s: %w", field, err)
			}
		}

		s.info.log("update_document",
			slog.String("term", term.String()),
			slog.String("doc_id", doc.ID))
		return nil
	})
}

// DeleteAll implements Writer.
func (s *SQLiteWriter) DeleteAll(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM fts_content`,
			`DELETE FROM doc_fields`,
			`DELETE FROM documents`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to clear index: %w", err)
			}
		}
		s.info.log("delete_all")
		return nil
	})
}

// DeleteDocuments implements Writer.
func (s *SQLiteWriter) DeleteDocuments(ctx context.Context, term Term) error {
	if term.Field == "" {
		return fmt.Errorf("term field is empty")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		n, err := deleteByTerm(ctx, tx, term)
		if err != nil {
			return err
		}
		s.info.log("delete_documents",
			slog.String("term", term.String()),
			slog.Int64("deleted", n))
		return nil
	})
}

// Commit advances the commit generation and checkpoints the WAL so the
// main database file holds every committed change.
func (s *SQLiteWriter) Commit(ctx context.Context) error {
	var gen uint64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'commit_generation'`).Scan(&raw)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read commit generation: %w", err)
		}
		if raw != "" {
			if gen, err = strconv.ParseUint(raw, 10, 64); err != nil {
				return fmt.Errorf("corrupt commit generation %q: %w", raw, err)
			}
		}
		gen++
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('commit_generation', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.FormatUint(gen, 10))
		if err != nil {
			return fmt.Errorf("failed to record commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.path != "" {
		s.mu.Lock()
		_, err = s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to checkpoint: %w", err)
		}
	}

	s.info.log("commit", slog.Uint64("generation", gen))
	return nil
}

// Optimize merges the FTS5 b-trees into one.
func (s *SQLiteWriter) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `INSERT INTO fts_content(fts_content) VALUES('optimize')`); err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}
	s.info.log("optimize", slog.String("result", "merged"))
	return nil
}

// SetInfoStream implements Writer.
func (s *SQLiteWriter) SetInfoStream(w io.Writer) {
	s.info.set(w, BackendSQLite)
}

// NumDocs implements Writer.
func (s *SQLiteWriter) NumDocs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Directory implements Writer.
func (s *SQLiteWriter) Directory() Directory {
	return Directory{Backend: BackendSQLite, Path: s.path}
}

// Close implements Writer.
func (s *SQLiteWriter) Close() error {
	s.info.log("close")
	return s.db.Close()
}

func (s *SQLiteWriter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteByTerm(ctx context.Context, tx *sql.Tx, term Term) (int64, error) {
	const match = `SELECT doc_id FROM doc_fields WHERE field = ? AND value = ?`

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_content WHERE doc_id IN (`+match+`)`, term.Field, term.Value); err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", term, err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE doc_id IN (`+match+`)`, term.Field, term.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", term, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doc_fields WHERE doc_id IN (`+match+`)`, term.Field, term.Value); err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", term, err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func deleteByID(ctx context.Context, tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		`DELETE FROM fts_content WHERE doc_id = ?`,
		`DELETE FROM doc_fields WHERE doc_id = ?`,
		`DELETE FROM documents WHERE doc_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
	}
	return nil
}
