package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/notesearch/internal/errors"
	"github.com/Aman-CERP/notesearch/internal/permit"
	"github.com/Aman-CERP/notesearch/internal/store"
)

// State is the lifecycle state of the index writer.
type State int32

const (
	// StateUninitialized means no writer has been opened yet.
	StateUninitialized State = iota
	// StateOpen means the writer accepts operations.
	StateOpen
	// StateClosed is terminal; the writer is gone.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Operation names, used in errors, logs and metrics.
const (
	OpUpdateDocument  = "update_document"
	OpDeleteAll       = "delete_all"
	OpDeleteDocuments = "delete_documents"
	OpCommit          = "commit"
	OpOptimize        = "optimize"
	OpSetInfoStream   = "set_info_stream"
	OpNumDocs         = "num_docs"
	OpGetDirectory    = "get_directory"
)

// Config describes where and how to open the index writer.
type Config struct {
	// UserDir is the user data directory. The index lives in a subdirectory.
	// Empty selects a temporary directory shared for the process lifetime.
	UserDir string

	// Analysis configures tokenization for the writer.
	Analysis store.AnalysisConfig
}

// Guard serializes access to one store.Writer. See the package documentation.
type Guard struct {
	permits  *permit.Pool
	capacity int

	// writer is read while holding one permit and cleared while holding all
	// of them, so a shared holder never sees it change.
	writer  store.Writer
	dir     store.Directory
	state   atomic.Int32
	commits atomic.Int64

	lock           *flock.Flock
	logger         *slog.Logger
	metrics        *Metrics
	acquireTimeout time.Duration
	cancellable    bool
	onCloseError   func(step string, err error)
}

// New wraps an already opened writer. The guard starts Open.
// Panics if w is nil.
func New(w store.Writer, opts ...Option) *Guard {
	if w == nil {
		panic("guard: nil writer")
	}

	g := &Guard{
		capacity: DefaultPermits,
		writer:   w,
		dir:      w.Directory(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.permits = permit.New(g.capacity)
	g.state.Store(int32(StateOpen))
	g.metrics.setInUse(0)

	return g
}

// Open resolves the index location from cfg, takes the cross-process lock
// next to it and opens the writer through factory.
func Open(cfg Config, factory store.Factory, opts ...Option) (*Guard, error) {
	location, err := store.ResolveLocation(cfg.UserDir)
	if err != nil {
		return nil, errors.StorageIO("open", err)
	}
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return nil, errors.StorageIO("open", fmt.Errorf("create user directory: %w", err))
	}

	lockPath := location + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.StorageIO("open", fmt.Errorf("lock %s: %w", lockPath, err))
	}
	if !locked {
		return nil, errors.IndexLocked(location)
	}

	w, err := factory.Open(location, cfg.Analysis)
	if err != nil {
		_ = fl.Unlock()
		return nil, errors.StorageIO("open", err)
	}

	g := New(w, opts...)
	g.lock = fl
	g.logger.Info("index_writer_opened",
		slog.String("directory", g.dir.String()),
		slog.Int("permits", g.capacity))

	return g, nil
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	return State(g.state.Load())
}

// CommitCount returns the number of successful Commit calls.
func (g *Guard) CommitCount() int64 {
	return g.commits.Load()
}

// Capacity returns the number of operations that may run concurrently.
func (g *Guard) Capacity() int {
	return g.permits.Capacity()
}

// InUse returns the number of permits currently held.
func (g *Guard) InUse() int {
	return g.permits.InUse()
}

// UpdateDocument replaces every document matching term with doc.
func (g *Guard) UpdateDocument(ctx context.Context, term store.Term, doc store.Document) error {
	return g.do(ctx, OpUpdateDocument, func(ctx context.Context, w store.Writer) error {
		return w.UpdateDocument(ctx, term, doc)
	})
}

// DeleteAll removes every document.
func (g *Guard) DeleteAll(ctx context.Context) error {
	return g.do(ctx, OpDeleteAll, func(ctx context.Context, w store.Writer) error {
		return w.DeleteAll(ctx)
	})
}

// DeleteDocuments removes every document matching term.
func (g *Guard) DeleteDocuments(ctx context.Context, term store.Term) error {
	return g.do(ctx, OpDeleteDocuments, func(ctx context.Context, w store.Writer) error {
		return w.DeleteDocuments(ctx, term)
	})
}

// Commit makes pending changes durable. CommitCount grows by one for each
// call that succeeds.
func (g *Guard) Commit(ctx context.Context) error {
	return g.do(ctx, OpCommit, func(ctx context.Context, w store.Writer) error {
		if err := w.Commit(ctx); err != nil {
			return err
		}
		g.commits.Add(1)
		g.metrics.incCommits()
		return nil
	})
}

// Optimize compacts the index.
func (g *Guard) Optimize(ctx context.Context) error {
	return g.do(ctx, OpOptimize, func(ctx context.Context, w store.Writer) error {
		return w.Optimize(ctx)
	})
}

// SetInfoStream directs writer tracing to sink. Nil disables it.
func (g *Guard) SetInfoStream(ctx context.Context, sink io.Writer) error {
	return g.do(ctx, OpSetInfoStream, func(_ context.Context, w store.Writer) error {
		w.SetInfoStream(sink)
		return nil
	})
}

// NumDocs returns the number of documents in the index.
func (g *Guard) NumDocs(ctx context.Context) (int, error) {
	var n int
	err := g.do(ctx, OpNumDocs, func(ctx context.Context, w store.Writer) error {
		var err error
		n, err = w.NumDocs(ctx)
		return err
	})
	return n, err
}

// Directory returns the location of the open index.
func (g *Guard) Directory(ctx context.Context) (store.Directory, error) {
	var dir store.Directory
	err := g.do(ctx, OpGetDirectory, func(_ context.Context, w store.Writer) error {
		dir = w.Directory()
		return nil
	})
	return dir, err
}

// Close waits for every in-flight operation, then commits and closes the
// writer. Failures in either step are logged, counted and handed to the
// close error handler; the guard ends Closed regardless and Close returns
// nil. Calling Close again is a no-op.
//
// Close must not be called by a goroutine that is inside a guarded operation.
func (g *Guard) Close() error {
	lease := g.permits.AcquireExclusive()
	defer func() {
		lease.Release()
		g.metrics.setInUse(g.permits.InUse())
	}()
	g.metrics.setInUse(g.permits.InUse())

	g.state.Store(int32(StateClosed))
	if g.writer == nil {
		return nil
	}

	w := g.writer
	g.writer = nil

	g.logger.Info("index_writer_closed",
		slog.String("directory", g.dir.String()),
		slog.Int64("commits", g.commits.Load()))

	// Close is attempted even when the final commit fails so the writer's
	// files and locks are released.
	if err := w.Commit(context.Background()); err != nil {
		g.reportCloseError("commit", err)
	}
	if err := w.Close(); err != nil {
		g.reportCloseError("close", err)
	}
	if g.lock != nil {
		if err := g.lock.Unlock(); err != nil {
			g.reportCloseError("unlock", err)
		}
	}

	return nil
}

func (g *Guard) reportCloseError(step string, err error) {
	g.logger.Error("index_writer_close_failed",
		slog.String("step", step),
		slog.String("directory", g.dir.String()),
		slog.String("error", err.Error()))
	g.metrics.incCloseFailure(step)
	if g.onCloseError != nil {
		g.onCloseError(step, err)
	}
}

// do runs fn against the writer while holding one permit. The permit is
// released on every path, including a panic in fn.
func (g *Guard) do(ctx context.Context, op string, fn func(ctx context.Context, w store.Writer) error) error {
	lease, err := g.acquireShared(ctx, op)
	if err != nil {
		g.metrics.observe(op, resultTimeout, 0)
		g.logger.Warn("index_permit_wait_abandoned",
			slog.String("op", op),
			slog.String("error", err.Error()))
		return err
	}
	g.metrics.setInUse(g.permits.InUse())
	defer func() {
		lease.Release()
		g.metrics.setInUse(g.permits.InUse())
	}()

	if g.State() != StateOpen || g.writer == nil {
		g.metrics.observe(op, resultInvalidState, 0)
		return errors.InvalidState(op)
	}

	start := time.Now()
	if werr := fn(ctx, g.writer); werr != nil {
		g.metrics.observe(op, resultError, time.Since(start))
		serr := errors.StorageIO(op, werr)
		g.logger.LogAttrs(ctx, slog.LevelWarn, "index_operation_failed", errors.LogAttrs(serr)...)
		return serr
	}
	g.metrics.observe(op, resultOK, time.Since(start))

	return nil
}

func (g *Guard) acquireShared(ctx context.Context, op string) (*permit.Lease, error) {
	if g.acquireTimeout <= 0 && !g.cancellable {
		return g.permits.AcquireShared(), nil
	}

	if !g.cancellable {
		ctx = context.WithoutCancel(ctx)
	}
	if g.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.acquireTimeout)
		defer cancel()
	}

	lease, err := g.permits.AcquireSharedContext(ctx)
	if err != nil {
		return nil, errors.AcquireTimeout(op, err)
	}
	return lease, nil
}
