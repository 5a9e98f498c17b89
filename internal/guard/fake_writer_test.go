package guard

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Aman-CERP/notesearch/internal/store"
)

// fakeWriter is an in-memory store.Writer that records calls and tracks how
// many operations run inside it at once.
type fakeWriter struct {
	mu   sync.Mutex
	docs map[string]store.Document

	commits   int
	closes    int
	optimizes int
	sink      io.Writer

	commitErr error
	closeErr  error
	updateErr error

	// gate, when set, blocks UpdateDocument until it is closed. entered
	// receives once per UpdateDocument call after the call is counted.
	gate    chan struct{}
	entered chan struct{}

	active atomic.Int64
	peak   atomic.Int64
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{docs: make(map[string]store.Document)}
}

func (f *fakeWriter) enter() func() {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeWriter) UpdateDocument(_ context.Context, term store.Term, doc store.Document) error {
	defer f.enter()()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.updateErr != nil {
		return f.updateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.docs {
		if d.Fields[term.Field] == term.Value {
			delete(f.docs, id)
		}
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeWriter) DeleteAll(context.Context) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]store.Document)
	return nil
}

func (f *fakeWriter) DeleteDocuments(_ context.Context, term store.Term) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.docs {
		if d.Fields[term.Field] == term.Value {
			delete(f.docs, id)
		}
	}
	return nil
}

func (f *fakeWriter) Commit(context.Context) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return f.commitErr
}

func (f *fakeWriter) Optimize(context.Context) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimizes++
	return nil
}

func (f *fakeWriter) SetInfoStream(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = w
}

func (f *fakeWriter) NumDocs(context.Context) (int, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), nil
}

func (f *fakeWriter) Directory() store.Directory {
	return store.Directory{Backend: "fake", Path: "/fake/noteindex"}
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeWriter) counts() (commits, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits, f.closes
}

func noteDoc(path, content string) (store.Term, store.Document) {
	return store.Term{Field: "path", Value: path}, store.Document{
		ID:     path,
		Fields: map[string]string{"path": path, "content": content},
	}
}

// fakeFactory opens w for any location and counts the calls.
func fakeFactory(t *testing.T, w store.Writer, opened *atomic.Int32) store.Factory {
	t.Helper()
	return store.FactoryFunc(func(string, store.AnalysisConfig) (store.Writer, error) {
		if opened != nil {
			opened.Add(1)
		}
		return w, nil
	})
}
