package watcher

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new note file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing note file was written.
	OpModify
	// OpDelete indicates a note file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a change to one note file.
type FileEvent struct {
	// Path is the slash-separated path relative to the watched root.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// DefaultExtensions are the file extensions treated as notes.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".org"}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Default: 200ms
	DebounceWindow time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 100
	EventBufferSize int

	// Extensions lists the note file extensions to report, with leading dot.
	// Default: DefaultExtensions
	Extensions []string

	// Ignore holds doublestar glob patterns, matched against the relative
	// path. Matching directories are not watched.
	Ignore []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		EventBufferSize: 100,
		Extensions:      DefaultExtensions,
	}
}

// Validate reports options that cannot be used.
func (o Options) Validate() error {
	if o.DebounceWindow < 0 {
		return fmt.Errorf("debounce window must not be negative, got %s", o.DebounceWindow)
	}
	if o.EventBufferSize < 0 {
		return fmt.Errorf("event buffer size must not be negative, got %d", o.EventBufferSize)
	}
	for _, ext := range o.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	for _, p := range o.Ignore {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if len(o.Extensions) == 0 {
		o.Extensions = defaults.Extensions
	}
	return o
}

// IsNote reports whether path has one of the given extensions.
// The comparison ignores case.
func IsNote(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// IsHidden reports whether any element of the slash-separated relative
// path starts with a dot.
func IsHidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

// Ignored reports whether the slash-separated relative path, or one of its
// parent directories, matches any of the glob patterns.
func Ignored(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for p := rel; p != "." && p != ""; p = path.Dir(p) {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return true
			}
		}
	}
	return false
}
