package store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends runs every writer test against each implementation.
var backends = []struct {
	name string
	open func(t *testing.T) Writer
}{
	{
		name: "bleve",
		open: func(t *testing.T) Writer {
			w, err := NewBleveWriter("", DefaultAnalysisConfig())
			require.NoError(t, err)
			return w
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T) Writer {
			w, err := NewSQLiteWriter("", DefaultAnalysisConfig())
			require.NoError(t, err)
			return w
		},
	},
}

func note(path, title, content string) (Term, Document) {
	return Term{Field: "path", Value: path}, Document{
		ID: path,
		Fields: map[string]string{
			"path":    path,
			"title":   title,
			"content": content,
		},
	}
}

func TestWriter_UpdateDocument_AddsAndReplaces(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			// Given: two notes
			term, doc := note("inbox/a.md", "Groceries", "milk eggs")
			require.NoError(t, w.UpdateDocument(ctx, term, doc))
			term2, doc2 := note("inbox/b.md", "Ideas", "write a parser")
			require.NoError(t, w.UpdateDocument(ctx, term2, doc2))

			n, err := w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			// When: the first note is updated by its term
			_, updated := note("inbox/a.md", "Groceries", "milk eggs bread")
			require.NoError(t, w.UpdateDocument(ctx, term, updated))

			// Then: it is replaced, not duplicated
			n, err = w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestWriter_UpdateDocument_ReplacesDocsWithDifferentIDs(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			// Given: a document stored under one ID
			term := Term{Field: "path", Value: "journal/2026-10-16.md"}
			require.NoError(t, w.UpdateDocument(ctx, term, Document{
				ID:     "old-id",
				Fields: map[string]string{"path": term.Value, "content": "draft"},
			}))

			// When: the same term is updated with a new ID
			require.NoError(t, w.UpdateDocument(ctx, term, Document{
				ID:     "new-id",
				Fields: map[string]string{"path": term.Value, "content": "final"},
			}))

			// Then: only the new document remains
			n, err := w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestWriter_DeleteDocuments_ByTerm(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			for _, p := range []string{"a.md", "b.md", "c.md"} {
				term, doc := note(p, p, "body of "+p)
				require.NoError(t, w.UpdateDocument(ctx, term, doc))
			}

			// When: deleting one note by path
			require.NoError(t, w.DeleteDocuments(ctx, Term{Field: "path", Value: "b.md"}))

			// Then: the others remain
			n, err := w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			// And: deleting an unknown term is not an error
			require.NoError(t, w.DeleteDocuments(ctx, Term{Field: "path", Value: "missing.md"}))
		})
	}
}

func TestWriter_DeleteAll_ThenNumDocsIsZero(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			for i := 0; i < 25; i++ {
				term, doc := note(fmt.Sprintf("n%02d.md", i), "t", "c")
				require.NoError(t, w.UpdateDocument(ctx, term, doc))
			}

			require.NoError(t, w.DeleteAll(ctx))

			n, err := w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestWriter_CommitAndOptimize(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			term, doc := note("a.md", "a", "alpha")
			require.NoError(t, w.UpdateDocument(ctx, term, doc))

			require.NoError(t, w.Commit(ctx))
			require.NoError(t, w.Commit(ctx))
			require.NoError(t, w.Optimize(ctx))

			n, err := w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestWriter_InfoStream(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			// Given: an info stream sink
			var buf bytes.Buffer
			w.SetInfoStream(&buf)

			// When: mutating
			term, doc := note("a.md", "a", "alpha")
			require.NoError(t, w.UpdateDocument(ctx, term, doc))
			require.NoError(t, w.Commit(ctx))

			// Then: activity is traced
			out := buf.String()
			assert.Contains(t, out, "update_document")
			assert.Contains(t, out, "commit")
			assert.Contains(t, out, "backend="+be.name)

			// When: the stream is disabled
			buf.Reset()
			w.SetInfoStream(nil)
			require.NoError(t, w.Commit(ctx))

			// Then: nothing more is written
			assert.Empty(t, buf.String())
		})
	}
}

func TestWriter_RejectsInvalidInput(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			assert.Error(t, w.UpdateDocument(ctx, Term{}, Document{ID: "x"}))
			assert.Error(t, w.UpdateDocument(ctx, Term{Field: "path", Value: "x"}, Document{}))
			assert.Error(t, w.DeleteDocuments(ctx, Term{}))
		})
	}
}

func TestWriter_ConcurrentUpdates(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			w := be.open(t)
			defer func() { _ = w.Close() }()

			// When: five goroutines write distinct notes concurrently
			var wg sync.WaitGroup
			errs := make(chan error, 50)
			for g := 0; g < 5; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 10; i++ {
						term, doc := note(fmt.Sprintf("g%d/n%d.md", g, i), "t", "c")
						errs <- w.UpdateDocument(ctx, term, doc)
					}
				}(g)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			// Then: every note landed once
			n, err := w.NumDocs(ctx)
			require.NoError(t, err)
			assert.Equal(t, 50, n)
		})
	}
}

func TestSQLiteWriter_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "noteindex", sqliteFileName)

	// Given: a committed on-disk index
	w, err := NewSQLiteWriter(path, DefaultAnalysisConfig())
	require.NoError(t, err)
	term, doc := note("a.md", "a", "alpha")
	require.NoError(t, w.UpdateDocument(ctx, term, doc))
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Close())

	// When: reopening
	w, err = NewSQLiteWriter(path, DefaultAnalysisConfig())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// Then: the document is still there
	n, err := w.NumDocs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Directory{Backend: BackendSQLite, Path: path}, w.Directory())
}

func TestBleveWriter_OnDiskDirectoryAndGeneration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), IndexDirName)

	w, err := NewBleveWriter(path, AnalysisConfig{Analyzer: AnalyzerEnglish})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	assert.Equal(t, Directory{Backend: BackendBleve, Path: path}, w.Directory())
	assert.Equal(t, uint64(0), w.Generation())

	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Commit(ctx))
	assert.Equal(t, uint64(2), w.Generation())
}

func TestNewWriters_RejectUnknownAnalyzer(t *testing.T) {
	_, err := NewBleveWriter("", AnalysisConfig{Analyzer: "klingon"})
	assert.Error(t, err)

	_, err = NewSQLiteWriter("", AnalysisConfig{Analyzer: "klingon"})
	assert.Error(t, err)
}
