package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/notesearch/internal/store"
	"github.com/Aman-CERP/notesearch/internal/watcher"
)

// DefaultCacheSize bounds the number of content hashes remembered between
// runs of a long-lived Indexer.
const DefaultCacheSize = 10000

// IndexWriter is the subset of the guarded index writer the indexer needs.
type IndexWriter interface {
	UpdateDocument(ctx context.Context, term store.Term, doc store.Document) error
	DeleteDocuments(ctx context.Context, term store.Term) error
	DeleteAll(ctx context.Context) error
	Commit(ctx context.Context) error
}

// Stats summarizes one indexing pass.
type Stats struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
}

type counters struct {
	indexed, unchanged, deleted, skipped atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Indexed:   int(c.indexed.Load()),
		Unchanged: int(c.unchanged.Load()),
		Deleted:   int(c.deleted.Load()),
		Skipped:   int(c.skipped.Load()),
	}
}

// Indexer feeds the notes under one root directory to an IndexWriter.
// Notes are written concurrently, bounded by the worker count.
type Indexer struct {
	w          IndexWriter
	root       string
	workers    int
	extensions []string
	ignore     []string
	cacheSize  int
	logger     *slog.Logger

	// hashes remembers the content hash last written per note path so
	// unchanged notes are not rewritten.
	hashes *lru.Cache[string, uint64]
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithWorkers sets how many notes are written at once. Values below one
// are ignored. Matching the writer's permit count keeps every permit busy.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n >= 1 {
			ix.workers = n
		}
	}
}

// WithExtensions sets which file extensions are notes.
func WithExtensions(exts []string) Option {
	return func(ix *Indexer) {
		if len(exts) > 0 {
			ix.extensions = exts
		}
	}
}

// WithIgnore sets glob patterns, relative to the root, for paths that are
// never indexed.
func WithIgnore(patterns []string) Option {
	return func(ix *Indexer) {
		ix.ignore = patterns
	}
}

// WithCacheSize sets the content-hash cache size.
func WithCacheSize(n int) Option {
	return func(ix *Indexer) {
		if n >= 1 {
			ix.cacheSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// NewIndexer creates an indexer for the notes under root.
func NewIndexer(w IndexWriter, root string, opts ...Option) (*Indexer, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat notes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("notes path is not a directory: %s", absRoot)
	}

	ix := &Indexer{
		w:          w,
		root:       absRoot,
		workers:    runtime.NumCPU(),
		extensions: watcher.DefaultExtensions,
		cacheSize:  DefaultCacheSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}

	ix.hashes, err = lru.New[string, uint64](ix.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}
	return ix, nil
}

// Root returns the absolute notes directory.
func (ix *Indexer) Root() string {
	return ix.root
}

// IndexDir writes every note under the root, then commits.
// Unreadable, oversized and binary files are skipped and counted.
func (ix *Indexer) IndexDir(ctx context.Context) (Stats, error) {
	paths, err := ix.discover(ctx)
	if err != nil {
		return Stats{}, err
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, rel := range paths {
		g.Go(func() error {
			return ix.indexOne(gctx, rel, &c)
		})
	}
	if err := g.Wait(); err != nil {
		return c.stats(), err
	}

	if err := ix.w.Commit(ctx); err != nil {
		return c.stats(), err
	}

	stats := c.stats()
	ix.logger.Info("notes_indexed",
		slog.String("root", ix.root),
		slog.Int("indexed", stats.Indexed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

// Rebuild clears the index and writes every note again.
func (ix *Indexer) Rebuild(ctx context.Context) (Stats, error) {
	if err := ix.w.DeleteAll(ctx); err != nil {
		return Stats{}, err
	}
	ix.hashes.Purge()
	return ix.IndexDir(ctx)
}

// Apply brings the index in line with a batch of watcher events and
// commits if anything changed.
func (ix *Indexer) Apply(ctx context.Context, events []watcher.FileEvent) (Stats, error) {
	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, ev := range events {
		g.Go(func() error {
			if ev.Operation == watcher.OpDelete {
				return ix.removeOne(gctx, ev.Path, &c)
			}
			return ix.indexOne(gctx, ev.Path, &c)
		})
	}
	if err := g.Wait(); err != nil {
		return c.stats(), err
	}

	stats := c.stats()
	if stats.Indexed+stats.Deleted == 0 {
		return stats, nil
	}
	if err := ix.w.Commit(ctx); err != nil {
		return stats, err
	}

	ix.logger.Info("notes_changes_applied",
		slog.Int("events", len(events)),
		slog.Int("indexed", stats.Indexed),
		slog.Int("deleted", stats.Deleted))
	return stats, nil
}

// Remove deletes the note at rel from the index and commits.
func (ix *Indexer) Remove(ctx context.Context, rel string) error {
	var c counters
	if err := ix.removeOne(ctx, filepath.ToSlash(rel), &c); err != nil {
		return err
	}
	return ix.w.Commit(ctx)
}

func (ix *Indexer) indexOne(ctx context.Context, rel string, c *counters) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	note, err := Load(ix.root, rel)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Gone before we got to it; make sure the index agrees.
		return ix.removeOne(ctx, rel, c)
	case err != nil:
		c.skipped.Add(1)
		ix.logger.Debug("note_skipped", slog.String("path", rel), slog.String("reason", err.Error()))
		return nil
	}

	if prev, ok := ix.hashes.Get(rel); ok && prev == note.Hash {
		c.unchanged.Add(1)
		return nil
	}

	if err := ix.w.UpdateDocument(ctx, note.Term(), note.Document()); err != nil {
		return err
	}
	ix.hashes.Add(rel, note.Hash)
	c.indexed.Add(1)
	return nil
}

func (ix *Indexer) removeOne(ctx context.Context, rel string, c *counters) error {
	if err := ix.w.DeleteDocuments(ctx, PathTerm(rel)); err != nil {
		return err
	}
	ix.hashes.Remove(rel)
	c.deleted.Add(1)
	return nil
}

// discover lists the notes under the root, skipping hidden and ignored paths.
func (ix *Indexer) discover(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			ix.logger.Warn("notes_walk_error", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		rel, relErr := filepath.Rel(ix.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if watcher.IsHidden(rel) || watcher.Ignored(rel, ix.ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if watcher.IsNote(rel, ix.extensions) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk notes directory: %w", err)
	}
	return paths, nil
}
