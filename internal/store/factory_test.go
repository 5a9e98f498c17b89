package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		input   string
		want    Backend
		wantErr bool
	}{
		{"", BackendBleve, false},
		{"bleve", BackendBleve, false},
		{" SQLite ", BackendSQLite, false},
		{"lucene", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBackend(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFactory_OpensBackendAtLocation(t *testing.T) {
	tests := []struct {
		backend  string
		wantPath func(loc string) string
	}{
		{"bleve", func(loc string) string { return loc }},
		{"sqlite", func(loc string) string { return filepath.Join(loc, sqliteFileName) }},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			// Given: a factory and a fresh location
			f, err := NewFactory(tt.backend)
			require.NoError(t, err)
			loc := filepath.Join(t.TempDir(), IndexDirName)

			// When: opening
			w, err := f.Open(loc, DefaultAnalysisConfig())
			require.NoError(t, err)
			defer func() { _ = w.Close() }()

			// Then: the writer lives at the expected path
			assert.Equal(t, tt.wantPath(loc), w.Directory().Path)
			_, statErr := os.Stat(tt.wantPath(loc))
			assert.NoError(t, statErr)

			n, err := w.NumDocs(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestNewFactory_UnknownBackend(t *testing.T) {
	_, err := NewFactory("elastic")
	assert.Error(t, err)
}

func TestFactoryFunc_Delegates(t *testing.T) {
	var gotLoc string
	f := FactoryFunc(func(location string, _ AnalysisConfig) (Writer, error) {
		gotLoc = location
		return NewBleveWriter("", DefaultAnalysisConfig())
	})

	w, err := f.Open("somewhere", DefaultAnalysisConfig())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	assert.Equal(t, "somewhere", gotLoc)
}

func TestResolveLocation(t *testing.T) {
	// Given: an explicit user directory
	dir := t.TempDir()
	loc, err := ResolveLocation(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, IndexDirName), loc)

	// When: no user directory is configured
	first, err := ResolveLocation("")
	require.NoError(t, err)
	second, err := ResolveLocation("")
	require.NoError(t, err)

	// Then: the process-wide temporary fallback is reused
	assert.Equal(t, first, second)
	assert.Equal(t, IndexDirName, filepath.Base(first))
	info, err := os.Stat(filepath.Dir(first))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDirectory_String(t *testing.T) {
	assert.Equal(t, "bleve:memory", Directory{Backend: BackendBleve}.String())
	assert.Equal(t, "sqlite:/x/notes.db", Directory{Backend: BackendSQLite, Path: "/x/notes.db"}.String())
}
