// Package notes turns note files on disk into index documents and feeds
// them to an index writer.
package notes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/notesearch/internal/store"
)

// MaxNoteSize is the largest file indexed. Larger files are skipped.
const MaxNoteSize = 10 * 1024 * 1024

// Document field names.
const (
	FieldPath     = "path"
	FieldTitle    = "title"
	FieldContent  = "content"
	FieldModified = "modified"
)

// Note is one note file read from disk.
type Note struct {
	// Path is slash-separated and relative to the notes root. It is also
	// the document ID and the term that identifies the note in the index.
	Path     string
	Title    string
	Content  string
	Modified time.Time
	Hash     uint64
}

// ErrSkipped marks files that are not indexed: too large or binary.
var ErrSkipped = errors.New("note skipped")

// Load reads the note at rel under root.
func Load(root, rel string) (Note, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return Note{}, err
	}
	if info.IsDir() {
		return Note{}, fmt.Errorf("%s is a directory: %w", rel, ErrSkipped)
	}
	if info.Size() > MaxNoteSize {
		return Note{}, fmt.Errorf("%s is %d bytes: %w", rel, info.Size(), ErrSkipped)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return Note{}, err
	}
	if isBinaryContent(content) {
		return Note{}, fmt.Errorf("%s looks binary: %w", rel, ErrSkipped)
	}

	return Note{
		Path:     rel,
		Title:    titleOf(rel, content),
		Content:  string(content),
		Modified: info.ModTime().UTC(),
		Hash:     xxhash.Sum64(content),
	}, nil
}

// Term returns the term that identifies this note in the index.
func (n Note) Term() store.Term {
	return PathTerm(n.Path)
}

// Document converts the note to an index document.
func (n Note) Document() store.Document {
	return store.Document{
		ID: n.Path,
		Fields: map[string]string{
			FieldPath:     n.Path,
			FieldTitle:    n.Title,
			FieldContent:  n.Content,
			FieldModified: n.Modified.Format(time.RFC3339),
		},
	}
}

// PathTerm returns the term matching the note stored at rel.
func PathTerm(rel string) store.Term {
	return store.Term{Field: FieldPath, Value: rel}
}

// titleOf returns the first Markdown heading or Org title, falling back to
// the file name without its extension.
func titleOf(rel string, content []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(content))
	for i := 0; i < 20 && sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "# "):
			return strings.TrimSpace(line[2:])
		case strings.HasPrefix(strings.ToLower(line), "#+title:"):
			return strings.TrimSpace(line[len("#+title:"):])
		}
	}
	base := filepath.Base(filepath.FromSlash(rel))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isBinaryContent checks the first 512 bytes for a NUL byte.
func isBinaryContent(content []byte) bool {
	checkLen := min(len(content), 512)
	return bytes.IndexByte(content[:checkLen], 0) >= 0
}
