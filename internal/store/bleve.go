package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// commitGenerationKey is the bleve internal key holding the last commit generation.
	commitGenerationKey = "_commit_generation"

	// scanPageSize bounds each search page used to collect document IDs.
	scanPageSize = 1000
)

// BleveWriter is a Writer backed by a bleve v2 index.
type BleveWriter struct {
	// mu serializes composite mutations (search then batch).
	mu         sync.Mutex
	index      bleve.Index
	path       string
	analysis   AnalysisConfig
	generation atomic.Uint64
	info       infoStream
}

var _ Writer = (*BleveWriter)(nil)

// validateIndexIntegrity checks if a bleve index is valid before opening.
// Returns nil if valid or absent, an error describing the corruption if not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// NewBleveWriter opens the bleve index at path, creating it if needed.
// An empty path creates an in-memory index. A corrupted index is cleared
// and recreated; notes can always be re-ingested.
func NewBleveWriter(path string, analysis AnalysisConfig) (*BleveWriter, error) {
	analysis = analysis.withDefaults()
	if err := analysis.Validate(); err != nil {
		return nil, err
	}

	indexMapping := buildIndexMapping(analysis)

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("bleve_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, notes must be re-ingested"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	w := &BleveWriter{
		index:    idx,
		path:     path,
		analysis: analysis,
	}

	if raw, err := idx.GetInternal([]byte(commitGenerationKey)); err == nil && len(raw) > 0 {
		if gen, perr := strconv.ParseUint(string(raw), 10, 64); perr == nil {
			w.generation.Store(gen)
		}
	}

	return w, nil
}

// buildIndexMapping maps keyword fields verbatim and analyzes everything else.
func buildIndexMapping(analysis AnalysisConfig) *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = bleveAnalyzer(analysis.Analyzer)

	docMapping := bleve.NewDocumentMapping()
	for _, field := range analysis.KeywordFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.IncludeInAll = false
		docMapping.AddFieldMappingsAt(field, fm)
	}
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

func bleveAnalyzer(name string) string {
	switch strings.ToLower(name) {
	case AnalyzerEnglish:
		return en.AnalyzerName
	case AnalyzerSimple:
		return simple.Name
	default:
		return standard.Name
	}
}

// UpdateDocument replaces every document matching term with doc in one batch.
func (b *BleveWriter) UpdateDocument(ctx context.Context, term Term, doc Document) error {
	if err := validateUpdate(term, doc); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.matchingIDs(ctx, termQuery(term))
	if err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		if id != doc.ID {
			batch.Delete(id)
		}
	}
	if err := batch.Index(doc.ID, fieldsOf(doc)); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	b.info.log("update_document",
		slog.String("term", term.String()),
		slog.String("doc_id", doc.ID),
		slog.Int("replaced", len(ids)))
	return nil
}

// DeleteAll removes every document page by page.
func (b *BleveWriter) DeleteAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.matchingIDs(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return err
	}
	if err := b.deleteIDs(ids); err != nil {
		return err
	}

	b.info.log("delete_all", slog.Int("deleted", len(ids)))
	return nil
}

// DeleteDocuments removes every document matching term.
func (b *BleveWriter) DeleteDocuments(ctx context.Context, term Term) error {
	if term.Field == "" {
		return fmt.Errorf("term field is empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.matchingIDs(ctx, termQuery(term))
	if err != nil {
		return err
	}
	if err := b.deleteIDs(ids); err != nil {
		return err
	}

	b.info.log("delete_documents",
		slog.String("term", term.String()),
		slog.Int("deleted", len(ids)))
	return nil
}

// Commit records the next commit generation in the index.
// Bleve persists batches as they are applied; the generation marks the
// point a reader can rely on.
func (b *BleveWriter) Commit(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation.Load() + 1
	if err := b.index.SetInternal([]byte(commitGenerationKey), []byte(strconv.FormatUint(gen, 10))); err != nil {
		return fmt.Errorf("failed to record commit: %w", err)
	}
	b.generation.Store(gen)

	b.info.log("commit", slog.Uint64("generation", gen))
	return nil
}

// Optimize is a no-op: bleve merges segments in the background and has no
// public force-merge.
func (b *BleveWriter) Optimize(_ context.Context) error {
	b.info.log("optimize", slog.String("result", "background_merge"))
	return nil
}

// SetInfoStream implements Writer.
func (b *BleveWriter) SetInfoStream(w io.Writer) {
	b.info.set(w, BackendBleve)
}

// NumDocs implements Writer.
func (b *BleveWriter) NumDocs(_ context.Context) (int, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

// Directory implements Writer.
func (b *BleveWriter) Directory() Directory {
	return Directory{Backend: BackendBleve, Path: b.path}
}

// Generation returns the last committed generation.
func (b *BleveWriter) Generation() uint64 {
	return b.generation.Load()
}

// Close implements Writer.
func (b *BleveWriter) Close() error {
	b.info.log("close")
	return b.index.Close()
}

// matchingIDs collects the IDs of all documents matching q.
// Caller must hold b.mu so the result set does not shift between pages.
func (b *BleveWriter) matchingIDs(ctx context.Context, q query.Query) ([]string, error) {
	var ids []string
	for from := 0; ; from += scanPageSize {
		req := bleve.NewSearchRequestOptions(q, scanPageSize, from, false)

		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to search documents: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < scanPageSize || uint64(from+len(res.Hits)) >= res.Total {
			return ids, nil
		}
	}
}

func (b *BleveWriter) deleteIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func termQuery(term Term) query.Query {
	q := bleve.NewTermQuery(term.Value)
	q.SetField(term.Field)
	return q
}

func fieldsOf(doc Document) map[string]any {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return fields
}
