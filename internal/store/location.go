package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// IndexDirName is the index directory created under the user directory.
const IndexDirName = "noteindex"

// fallbackDir is created at most once per process and left for the host
// environment to clean up.
var fallbackDir = sync.OnceValues(func() (string, error) {
	return os.MkdirTemp("", "notesearch")
})

// ResolveLocation returns the index location under userDir.
// When userDir is empty, a temporary directory created once per process is
// used instead, so repeated calls agree on the same location.
func ResolveLocation(userDir string) (string, error) {
	if userDir == "" {
		dir, err := fallbackDir()
		if err != nil {
			return "", fmt.Errorf("failed to create temporary user directory: %w", err)
		}
		userDir = dir
	}

	abs, err := filepath.Abs(userDir)
	if err != nil {
		return "", fmt.Errorf("resolve user directory %s: %w", userDir, err)
	}
	return filepath.Join(abs, IndexDirName), nil
}
